package field

// Array4 is a flat, strided view over a rank-4 block of float64 values with
// dimensions (v, k, j, i), i fastest. It is the storage for both fine data
// and the coarse restriction view of a field.
type Array4 struct {
	data []float64
	nv   int
	nk   int
	nj   int
	ni   int
}

// NewArray4 allocates a zeroed array with the given extents.
func NewArray4(nv, nk, nj, ni int) *Array4 {
	return &Array4{
		data: make([]float64, nv*nk*nj*ni),
		nv:   nv,
		nk:   nk,
		nj:   nj,
		ni:   ni,
	}
}

// Dims returns the (v, k, j, i) extents.
func (a *Array4) Dims() (nv, nk, nj, ni int) {
	return a.nv, a.nk, a.nj, a.ni
}

// Index returns the flat offset of (v, k, j, i).
func (a *Array4) Index(v, k, j, i int) int {
	return i + a.ni*(j+a.nj*(k+a.nk*v))
}

// At returns the value at (v, k, j, i).
func (a *Array4) At(v, k, j, i int) float64 {
	return a.data[a.Index(v, k, j, i)]
}

// Set stores val at (v, k, j, i).
func (a *Array4) Set(v, k, j, i int, val float64) {
	a.data[a.Index(v, k, j, i)] = val
}

// Raw exposes the backing slice.
func (a *Array4) Raw() []float64 {
	return a.data
}

// Fill sets every element to val.
func (a *Array4) Fill(val float64) {
	for n := range a.data {
		a.data[n] = val
	}
}

// Clone returns an independent copy.
func (a *Array4) Clone() *Array4 {
	out := NewArray4(a.nv, a.nk, a.nj, a.ni)
	copy(out.data, a.data)
	return out
}

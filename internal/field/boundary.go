package field

// Status tracks one communication buffer slot through a step.
type Status int

const (
	// StatusWaiting means no data has been produced or seen for the slot
	// this step.
	StatusWaiting Status = iota
	// StatusArrived means the receive buffer holds fresh data not yet
	// consumed.
	StatusArrived
	// StatusCompleted means the slot is done for this step.
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusArrived:
		return "arrived"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// BoundaryData holds the per-neighbor raw send/receive buffers and the status
// flags of one field on one block. Slot slices grow on demand so the topology
// layer is free to assign buffer ids without pre-declaring a count.
type BoundaryData struct {
	Send     [][]float64
	Recv     [][]float64
	SendFlag []Status
	RecvFlag []Status
}

// NewBoundaryData returns empty boundary storage.
func NewBoundaryData() *BoundaryData {
	return &BoundaryData{}
}

func growBufs(bufs [][]float64, slot int) [][]float64 {
	for len(bufs) <= slot {
		bufs = append(bufs, nil)
	}
	return bufs
}

func growFlags(flags []Status, slot int) []Status {
	for len(flags) <= slot {
		flags = append(flags, StatusWaiting)
	}
	return flags
}

// EnsureSend returns the send buffer for slot, (re)allocated to n values.
func (b *BoundaryData) EnsureSend(slot, n int) []float64 {
	b.Send = growBufs(b.Send, slot)
	b.SendFlag = growFlags(b.SendFlag, slot)
	if len(b.Send[slot]) != n {
		b.Send[slot] = make([]float64, n)
	}
	return b.Send[slot]
}

// EnsureRecv returns the receive buffer for slot, (re)allocated to n values.
func (b *BoundaryData) EnsureRecv(slot, n int) []float64 {
	b.Recv = growBufs(b.Recv, slot)
	b.RecvFlag = growFlags(b.RecvFlag, slot)
	if len(b.Recv[slot]) != n {
		b.Recv[slot] = make([]float64, n)
	}
	return b.Recv[slot]
}

// SetSendFlag records st for slot, growing storage as needed.
func (b *BoundaryData) SetSendFlag(slot int, st Status) {
	b.SendFlag = growFlags(b.SendFlag, slot)
	b.SendFlag[slot] = st
}

// SetRecvFlag records st for slot, growing storage as needed.
func (b *BoundaryData) SetRecvFlag(slot int, st Status) {
	b.RecvFlag = growFlags(b.RecvFlag, slot)
	b.RecvFlag[slot] = st
}

// SendFlagAt returns the send status of slot (waiting if never touched).
func (b *BoundaryData) SendFlagAt(slot int) Status {
	if slot >= len(b.SendFlag) {
		return StatusWaiting
	}
	return b.SendFlag[slot]
}

// RecvFlagAt returns the receive status of slot (waiting if never touched).
func (b *BoundaryData) RecvFlagAt(slot int) Status {
	if slot >= len(b.RecvFlag) {
		return StatusWaiting
	}
	return b.RecvFlag[slot]
}

// Package frame implements the wire format of cross-rank halo messages: a
// fixed big-endian header addressing one (step, block, field, buffer-slot)
// exchange followed by the packed float64 payload, sentinel slot included.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	FixedHeaderLen uint16 = 44
	Magic          uint32 = 0x48414C4F // "HALO"
	Version        uint16 = 1

	MsgHaloData uint32 = 1
)

var (
	ErrShortHeader       = errors.New("frame: short fixed header")
	ErrBadMagic          = errors.New("frame: bad magic")
	ErrBadVersion        = errors.New("frame: unsupported version")
	ErrHeaderLenTooSmall = errors.New("frame: header_len smaller than fixed header")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageType uint32
	SourceRank  uint32
	DestGID     uint32
	FieldIndex  uint32
	TargetSlot  uint32
	Step        uint64
	PayloadLen  uint64 // number of float64 values
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []float64
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadValues uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadValues: 4 * 1024 * 1024,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}

	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, ErrBadVersion
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}
	if h.PayloadLen > limits.MaxPayloadValues {
		return Frame{}, ErrPayloadTooLarge
	}

	// skip header extensions from newer minor revisions
	if extra := int64(h.HeaderLen) - int64(FixedHeaderLen); extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]float64, h.PayloadLen)
	if h.PayloadLen > 0 {
		raw := make([]byte, 8*h.PayloadLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return Frame{}, err
		}
		for n := range payload {
			payload[n] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*n:]))
		}
	}

	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadValues {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = payloadLen

	hb := EncodeHeader(h)
	if _, err := w.Write(hb); err != nil {
		return err
	}
	if payloadLen > 0 {
		raw := make([]byte, 8*payloadLen)
		for n, v := range f.Payload {
			binary.BigEndian.PutUint64(raw[8*n:], math.Float64bits(v))
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint32(buf[8:12], h.MessageType)
	binary.BigEndian.PutUint32(buf[12:16], h.SourceRank)
	binary.BigEndian.PutUint32(buf[16:20], h.DestGID)
	binary.BigEndian.PutUint32(buf[20:24], h.FieldIndex)
	binary.BigEndian.PutUint32(buf[24:28], h.TargetSlot)
	binary.BigEndian.PutUint64(buf[28:36], h.Step)
	binary.BigEndian.PutUint64(buf[36:44], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		MessageType: binary.BigEndian.Uint32(b[8:12]),
		SourceRank:  binary.BigEndian.Uint32(b[12:16]),
		DestGID:     binary.BigEndian.Uint32(b[16:20]),
		FieldIndex:  binary.BigEndian.Uint32(b[20:24]),
		TargetSlot:  binary.BigEndian.Uint32(b[24:28]),
		Step:        binary.BigEndian.Uint64(b[28:36]),
		PayloadLen:  binary.BigEndian.Uint64(b[36:44]),
	}, nil
}

package rsap

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize is the largest frame accepted by default. It matches the
// largest value of the 16-bit MaxMsgSize parameter.
const DefaultMaxFrameSize = 0xFFFF

// Limits bounds frame sizes on encode and decode.
type Limits struct {
	MaxFrameSize int
}

func (l *Limits) applyDefaults() {
	if l.MaxFrameSize <= 0 {
		l.MaxFrameSize = DefaultMaxFrameSize
	}
}

// DefaultLimits returns the limits used by IsFrameComplete and Decode.
func DefaultLimits() Limits {
	var l Limits
	l.applyDefaults()
	return l
}

// Encode serialises f under the default limits. Reserved bytes and padding
// are written as zero.
func Encode(f Frame) ([]byte, error) {
	return EncodeWithLimits(f, DefaultLimits())
}

// EncodeWithLimits serialises f, rejecting frames larger than
// limits.MaxFrameSize so that every encoded frame decodes under the same
// limits.
func EncodeWithLimits(f Frame, limits Limits) ([]byte, error) {
	limits.applyDefaults()
	if !f.MessageID.Valid() {
		return nil, fmt.Errorf("%w: unknown message id 0x%02X", ErrInvalidFrame, byte(f.MessageID))
	}
	if len(f.Parameters) > MaxParams {
		return nil, fmt.Errorf("%w: %d parameters", ErrInvalidFrame, len(f.Parameters))
	}
	size := f.Size()
	if size > limits.MaxFrameSize {
		return nil, fmt.Errorf("%w: %s of %d bytes exceeds %d bytes", ErrInvalidFrame, f.MessageID, size, limits.MaxFrameSize)
	}

	buf := make([]byte, size)
	buf[0] = byte(f.MessageID)
	buf[1] = byte(len(f.Parameters))

	pos := HeaderSize
	for _, p := range f.Parameters {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("%w: unknown parameter id 0x%02X", ErrInvalidFrame, byte(p.ID))
		}
		if len(p.Value) > MaxParamValue {
			return nil, fmt.Errorf("%w: %s value of %d bytes", ErrInvalidFrame, p.ID, len(p.Value))
		}
		buf[pos] = byte(p.ID)
		binary.BigEndian.PutUint16(buf[pos+2:], uint16(len(p.Value)))
		copy(buf[pos+ParamHeaderSize:], p.Value)
		pos += ParamHeaderSize + paddedLen(len(p.Value))
	}
	return buf, nil
}

// EncodeAll serialises frames back to back.
func EncodeAll(frames ...Frame) ([]byte, error) {
	var out []byte
	for _, f := range frames {
		b, err := Encode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// FrameLength walks the header and parameter headers at the start of buf.
// It returns the size of the first frame and whether buf holds all of it.
// A frame whose declared size exceeds limits.MaxFrameSize is malformed.
func FrameLength(buf []byte, limits Limits) (int, bool, error) {
	limits.applyDefaults()
	if len(buf) < HeaderSize {
		return 0, false, nil
	}

	count := int(buf[1])
	pos := HeaderSize
	for i := 0; i < count; i++ {
		if pos+ParamHeaderSize > limits.MaxFrameSize {
			return 0, false, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformedFrame, limits.MaxFrameSize)
		}
		if len(buf) < pos+ParamHeaderSize {
			return 0, false, nil
		}
		valueLen := int(binary.BigEndian.Uint16(buf[pos+2:]))
		end := pos + ParamHeaderSize + paddedLen(valueLen)
		if end > limits.MaxFrameSize {
			return 0, false, fmt.Errorf("%w: parameter %d declares %d bytes, frame exceeds %d bytes",
				ErrMalformedFrame, i, valueLen, limits.MaxFrameSize)
		}
		if len(buf) < end {
			return 0, false, nil
		}
		pos = end
	}
	return pos, true, nil
}

// IsFrameComplete reports whether buf starts with a complete frame.
func IsFrameComplete(buf []byte) (bool, error) {
	_, complete, err := FrameLength(buf, DefaultLimits())
	return complete, err
}

// Decode parses exactly one frame from buf.
func Decode(buf []byte) (Frame, error) {
	return DecodeWithLimits(buf, DefaultLimits())
}

// DecodeWithLimits parses exactly one frame from buf, enforcing limits.
func DecodeWithLimits(buf []byte, limits Limits) (Frame, error) {
	n, complete, err := FrameLength(buf, limits)
	if err != nil {
		return Frame{}, err
	}
	if !complete {
		return Frame{}, fmt.Errorf("%w: truncated frame of %d bytes", ErrMalformedFrame, len(buf))
	}
	if n != len(buf) {
		return Frame{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(buf)-n)
	}

	id, err := ParseMessageID(buf[0])
	if err != nil {
		return Frame{}, err
	}

	f := Frame{MessageID: id}
	count := int(buf[1])
	if count > 0 {
		f.Parameters = make([]Parameter, 0, count)
	}
	pos := HeaderSize
	for i := 0; i < count; i++ {
		pid, err := ParseParameterID(buf[pos])
		if err != nil {
			return Frame{}, err
		}
		valueLen := int(binary.BigEndian.Uint16(buf[pos+2:]))
		start := pos + ParamHeaderSize
		value := make([]byte, valueLen)
		copy(value, buf[start:start+valueLen])
		f.Parameters = append(f.Parameters, Parameter{ID: pid, Value: value})
		pos = start + paddedLen(valueLen)
	}
	return f, nil
}

// ExtractCommandAPDU returns the command APDU carried by a TRANSFER_APDU_REQ.
// The first parameter must be CommandAPDU or CommandAPDU7816.
func ExtractCommandAPDU(f Frame) ([]byte, error) {
	if f.MessageID != TransferApduReq || len(f.Parameters) == 0 {
		return nil, ErrNotApplicable
	}
	p := f.Parameters[0]
	if p.ID != ParamCommandAPDU && p.ID != ParamCommandAPDU7816 {
		return nil, fmt.Errorf("%w: first parameter is %s", ErrNotApplicable, p.ID)
	}
	return p.Value, nil
}

// MaxMsgSize returns the MaxMsgSize parameter of f, if present and well formed.
func MaxMsgSize(f Frame) (uint16, bool) {
	p, ok := f.Param(ParamMaxMsgSize)
	if !ok || len(p.Value) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(p.Value), true
}

package rsap

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// HeaderSize is the size of the frame header: id, parameter count, two reserved bytes.
	HeaderSize = 4
	// ParamHeaderSize is the size of a parameter header: id, reserved, 16-bit length.
	ParamHeaderSize = 4
	// MaxParamValue is the largest value a parameter length field can describe.
	MaxParamValue = 0xFFFF
	// MaxParams is the largest parameter count a header can describe.
	MaxParams = 0xFF
)

// Parameter is one typed value inside a Frame.
type Parameter struct {
	ID    ParameterID
	Value []byte
}

// Frame is one protocol message.
type Frame struct {
	MessageID  MessageID
	Parameters []Parameter
}

// Param returns the first parameter with the given id.
func (f Frame) Param(id ParameterID) (Parameter, bool) {
	for _, p := range f.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// Size returns the encoded size of the frame in bytes.
func (f Frame) Size() int {
	n := HeaderSize
	for _, p := range f.Parameters {
		n += ParamHeaderSize + paddedLen(len(p.Value))
	}
	return n
}

func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d parameters", f.MessageID, len(f.Parameters))
	for _, p := range f.Parameters {
		fmt.Fprintf(&b, " %s=%s", p.ID, strings.ToUpper(hex.EncodeToString(p.Value)))
	}
	return b.String()
}

// paddedLen rounds a value length up so that header plus value is a multiple of 4.
func paddedLen(n int) int {
	return n + (4-n%4)%4
}

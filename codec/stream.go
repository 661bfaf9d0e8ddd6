package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrMsgFormat   = errors.New("codec: message format error")
	ErrMsgTooLarge = errors.New("codec: message exceeds size limit")
)

// DefaultMaxMessageSize bounds a single message on a network stream.
const DefaultMaxMessageSize = 64 * 1024

type deadlineConn interface {
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// StreamOptions configures a StreamCodec. Zero values use defaults.
type StreamOptions struct {
	// ReadBuf and WriteBuf enable bufio wrapping when positive.
	ReadBuf  int
	WriteBuf int
	// MaxMessageSize rejects larger messages on both send and receive.
	MaxMessageSize int
}

func (o *StreamOptions) applyDefaults() {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
}

// StreamCodec carries opaque messages over a byte stream, each prefixed with
// its length as a big-endian uint32.
type StreamCodec struct {
	r        io.Reader
	w        io.Writer
	bw       *bufio.Writer
	closer   io.Closer
	deadline deadlineConn
	headBuf  []byte
	maxSize  int
}

func NewStreamCodec(rw io.ReadWriter, opts StreamOptions) *StreamCodec {
	opts.applyDefaults()
	c := &StreamCodec{
		r:       rw,
		w:       rw,
		headBuf: make([]byte, 4),
		maxSize: opts.MaxMessageSize,
	}
	if opts.ReadBuf > 0 {
		c.r = bufio.NewReaderSize(rw, opts.ReadBuf)
	}
	if opts.WriteBuf > 0 {
		c.bw = bufio.NewWriterSize(rw, opts.WriteBuf)
		c.w = c.bw
	}
	c.closer, _ = rw.(io.Closer)
	c.deadline, _ = rw.(deadlineConn)
	return c
}

// Receive reads one message. io.EOF is returned unwrapped on a clean close.
func (c *StreamCodec) Receive() ([]byte, error) {
	if _, err := io.ReadFull(c.r, c.headBuf); err != nil {
		return nil, err
	}

	msgLength := binary.BigEndian.Uint32(c.headBuf)
	if int64(msgLength) > int64(c.maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMsgTooLarge, msgLength)
	}

	body := make([]byte, msgLength)
	if _, err := io.ReadFull(c.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream closed inside a message", ErrMsgFormat)
		}
		return nil, err
	}
	return body, nil
}

// Send writes one message and flushes any buffering.
func (c *StreamCodec) Send(msg []byte) error {
	if len(msg) > c.maxSize {
		return fmt.Errorf("%w: %d bytes", ErrMsgTooLarge, len(msg))
	}
	head := make([]byte, 4, 4+len(msg))
	binary.BigEndian.PutUint32(head, uint32(len(msg)))
	if _, err := c.w.Write(append(head, msg...)); err != nil {
		return err
	}
	if c.bw != nil {
		return c.bw.Flush()
	}
	return nil
}

func (c *StreamCodec) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *StreamCodec) SetReadDeadline(t time.Time) error {
	if c.deadline != nil {
		return c.deadline.SetReadDeadline(t)
	}
	return nil
}

func (c *StreamCodec) SetWriteDeadline(t time.Time) error {
	if c.deadline != nil {
		return c.deadline.SetWriteDeadline(t)
	}
	return nil
}

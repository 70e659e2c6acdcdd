package loc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/iop-labs/profiled/pkg/bufpool"
)

// Framing errors.
var (
	ErrFrameTooLarge    = errors.New("location frame exceeds maximum size")
	ErrMalformedMessage = errors.New("malformed location message body")
)

// ReadMessage reads one length-prefixed frame from r and decodes its body.
// Read deadlines are the caller's responsibility.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	body := bufpool.Get(int(size))
	defer bufpool.Put(body)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg := &Message{}
	if err := msg.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// WriteMessage encodes msg and writes it as a single frame.
func WriteMessage(w io.Writer, msg *Message) error {
	body := msg.Marshal()
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	frame := bufpool.Get(FrameHeaderSize + len(body))
	defer bufpool.Put(frame)
	binary.LittleEndian.PutUint32(frame[:], uint32(len(body)))
	copy(frame[FrameHeaderSize:], body)

	_, err := w.Write(frame)
	return err
}

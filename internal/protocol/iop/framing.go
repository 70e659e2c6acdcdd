package iop

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/iop-labs/profiled/pkg/bufpool"
)

// Framing errors. ErrProtocolViolation wraps every fault that must terminate
// the connection after an ErrorProtocolViolation response.
var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrBadMagic          = fmt.Errorf("%w: bad frame magic", ErrProtocolViolation)
	ErrFrameTooLarge     = fmt.Errorf("%w: frame exceeds maximum size", ErrProtocolViolation)
	ErrMalformedMessage  = fmt.Errorf("%w: malformed message body", ErrProtocolViolation)
)

// ReadMessage reads one length-prefixed frame from r and decodes its body.
//
// The header is buffered first, then the body with a bounded read, so a
// malicious length field can never allocate more than MaxMessageSize bytes.
// Read deadlines are the caller's responsibility.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if header[0] != FrameMagic {
		return nil, ErrBadMagic
	}
	size := binary.LittleEndian.Uint32(header[1:])
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

// WriteMessage encodes msg and writes it as a single frame. The frame is
// assembled into one buffer so the write is a single syscall on an
// uncontended socket; callers serialize concurrent writers.
func WriteMessage(w io.Writer, msg *Message) error {
	body := msg.Marshal()
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	frame := bufpool.Get(FrameHeaderSize + len(body))
	defer bufpool.Put(frame)
	frame[0] = FrameMagic
	binary.LittleEndian.PutUint32(frame[1:], uint32(len(body)))
	copy(frame[FrameHeaderSize:], body)

	_, err := w.Write(frame)
	return err
}

// IsProtocolViolation reports whether err is a framing fault that must
// terminate the connection.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}

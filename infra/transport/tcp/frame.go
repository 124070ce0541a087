package tcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kilianp07/chairlink/core/session"
)

// MaxPayload bounds a single frame's payload.
const MaxPayload = 1 << 20

// ErrFrameTooLarge is returned for frames exceeding the limits.
var ErrFrameTooLarge = errors.New("frame too large")

// Frames are laid out as
//
//	u16 topic length | topic | u32 payload length | payload
//
// with all integers big-endian.
func writeFrame(w io.Writer, m session.Message) error {
	if len(m.Topic) > 0xFFFF || len(m.Payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 0, 6+len(m.Topic)+len(m.Payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Topic)))
	buf = append(buf, m.Topic...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

func readFrame(r *bufio.Reader) (session.Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return session.Message{}, err
	}
	topic := make([]byte, binary.BigEndian.Uint16(hdr[:2]))
	if _, err := io.ReadFull(r, topic); err != nil {
		return session.Message{}, fmt.Errorf("read topic: %w", err)
	}
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return session.Message{}, fmt.Errorf("read length: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:4])
	if n > MaxPayload {
		return session.Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return session.Message{}, fmt.Errorf("read payload: %w", err)
	}
	return session.Message{Topic: string(topic), Payload: payload}, nil
}

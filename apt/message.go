package apt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length of the fixed APT message header.
	HeaderSize = 6

	// MaxDataLength is the largest data packet accepted by ReadFrame and Decode.
	// The longest message used by piezo controllers (HW_GET_INFO) carries 84 bytes.
	MaxDataLength = 255

	dataFlag = 0x80
)

var (
	// ErrInvalidLength indicates a data length outside [1, MaxDataLength] or a frame
	// whose size does not match its header.
	ErrInvalidLength = errors.New("apt: invalid message length")

	// ErrShortFrame indicates a frame shorter than the message header.
	ErrShortFrame = errors.New("apt: frame shorter than header")

	// ErrShortPayload indicates a data packet too short for the payload of its message ID.
	ErrShortPayload = errors.New("apt: payload too short")

	// ErrUnknownMessage indicates a message ID with no payload decoder.
	ErrUnknownMessage = errors.New("apt: unknown message")
)

// Message is a single APT protocol message.
//
// A message either carries two single-byte parameters (header-only form) or a data
// packet. Data is nil for header-only messages.
type Message struct {
	ID     MsgID
	Param1 byte
	Param2 byte
	Dest   Endpoint
	Source Endpoint
	Data   []byte
}

// NewHeaderMessage creates a header-only message.
func NewHeaderMessage(id MsgID, param1, param2 byte, dest, source Endpoint) *Message {
	return &Message{ID: id, Param1: param1, Param2: param2, Dest: dest, Source: source}
}

// NewDataMessage creates a message with a data packet.
func NewDataMessage(id MsgID, data []byte, dest, source Endpoint) *Message {
	if data == nil {
		data = []byte{}
	}

	return &Message{ID: id, Dest: dest, Source: source, Data: data}
}

// HasData reports whether the message carries a data packet.
func (m *Message) HasData() bool {
	return m.Data != nil
}

// ChanIdent returns the 1-based channel identifier the message refers to.
//
// Header-only channel messages carry it in param1, data messages in the first two
// bytes of the packet. Device-level messages (HW_*) return 0.
func (m *Message) ChanIdent() uint16 {
	switch m.ID {
	case HwDisconnect, HwReqInfo, HwGetInfo, HwStartUpdateMsgs, HwStopUpdateMsgs, HwResponse, HwRichResponse:
		return 0
	}

	if m.HasData() {
		if len(m.Data) < 2 {
			return 0
		}

		return binary.LittleEndian.Uint16(m.Data)
	}

	return uint16(m.Param1)
}

// Encode serializes the message into its wire form.
func (m *Message) Encode() []byte {
	if !m.HasData() {
		buf := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint16(buf[0:], uint16(m.ID))
		buf[2] = m.Param1
		buf[3] = m.Param2
		buf[4] = byte(m.Dest) &^ dataFlag
		buf[5] = byte(m.Source)

		return buf
	}

	buf := make([]byte, HeaderSize+len(m.Data))
	binary.LittleEndian.PutUint16(buf[0:], uint16(m.ID))
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(m.Data))) //nolint:gosec
	buf[4] = byte(m.Dest) | dataFlag
	buf[5] = byte(m.Source)
	copy(buf[HeaderSize:], m.Data)

	return buf
}

// String returns a short human readable description used in logs.
func (m *Message) String() string {
	if m.HasData() {
		return fmt.Sprintf("%s dest=0x%02X src=0x%02X len=%d", m.ID, byte(m.Dest), byte(m.Source), len(m.Data))
	}

	return fmt.Sprintf("%s dest=0x%02X src=0x%02X p1=%d p2=%d", m.ID, byte(m.Dest), byte(m.Source), m.Param1, m.Param2)
}

// ReadFrame reads exactly one framed message from r and returns its raw bytes,
// header included.
//
// A data length larger than MaxDataLength returns ErrInvalidLength after the
// declared data bytes are discarded, so the next call starts at the next frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[4]&dataFlag == 0 {
		return header, nil
	}

	dataLen := int(binary.LittleEndian.Uint16(header[2:]))
	if dataLen == 0 || dataLen > MaxDataLength {
		if _, err := io.CopyN(io.Discard, r, int64(dataLen)); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, dataLen)
	}

	frame := make([]byte, HeaderSize+dataLen)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, err
	}

	return frame, nil
}

// Decode parses one complete frame produced by ReadFrame.
func Decode(frame []byte) (*Message, error) {
	if len(frame) < HeaderSize {
		return nil, ErrShortFrame
	}

	msg := &Message{
		ID:     MsgID(binary.LittleEndian.Uint16(frame[0:])),
		Dest:   Endpoint(frame[4] &^ dataFlag),
		Source: Endpoint(frame[5]),
	}

	if frame[4]&dataFlag == 0 {
		if len(frame) != HeaderSize {
			return nil, fmt.Errorf("%w: header-only frame of %d bytes", ErrInvalidLength, len(frame))
		}
		msg.Param1 = frame[2]
		msg.Param2 = frame[3]

		return msg, nil
	}

	dataLen := int(binary.LittleEndian.Uint16(frame[2:]))
	if dataLen == 0 || dataLen > MaxDataLength || len(frame) != HeaderSize+dataLen {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrInvalidLength, dataLen, len(frame)-HeaderSize)
	}

	msg.Data = make([]byte, dataLen)
	copy(msg.Data, frame[HeaderSize:])

	return msg, nil
}

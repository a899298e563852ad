// Package telemetry speaks the binary UDP protocol of the remote command
// node: a fixed 26-byte little-endian header followed by a message body.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Message ids.
const (
	MsgPlatformStatus   uint16 = 0x1001
	MsgControl          uint16 = 0x0003
	MsgControlFeedback  uint16 = 0x0004
	MsgNodeRegistration uint16 = 0x0005
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 26

var (
	// ErrShortFrame is returned when a datagram is smaller than its header or
	// declared body.
	ErrShortFrame = errors.New("telemetry: short frame")
	// ErrUnknownMessage is returned for message ids without a body codec.
	ErrUnknownMessage = errors.New("telemetry: unknown message id")
)

// Header precedes every message. Field order matches the wire layout.
type Header struct {
	MsgID        uint16
	SourcePlat   uint32
	ReceivePlat  uint32
	Serial       uint32
	CreateTimeMS uint64
	TotalPacks   uint8
	CurrentIndex uint8
	DataLength   uint16
}

// Body is a message payload.
type Body interface {
	MsgID() uint16
	encode(*bytes.Buffer) error
}

// Encode writes h followed by body. MsgID and DataLength are taken from the
// body; a zero TotalPacks is sent as a single fragment.
func Encode(h Header, body Body) ([]byte, error) {
	var b bytes.Buffer
	if err := body.encode(&b); err != nil {
		return nil, err
	}
	if b.Len() > 0xFFFF {
		return nil, fmt.Errorf("telemetry: body of %d bytes exceeds frame limit", b.Len())
	}
	h.MsgID = body.MsgID()
	h.DataLength = uint16(b.Len())
	if h.TotalPacks == 0 {
		h.TotalPacks, h.CurrentIndex = 1, 1
	}
	out := bytes.NewBuffer(make([]byte, 0, HeaderSize+b.Len()))
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	out.Write(b.Bytes())
	return out.Bytes(), nil
}

// DecodeHeader reads the header of a datagram.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, err
	}
	return h, nil
}

// Decode parses a datagram into its header and body.
func Decode(data []byte) (Header, Body, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return h, nil, err
	}
	payload := data[HeaderSize:]
	if len(payload) < int(h.DataLength) {
		return h, nil, fmt.Errorf("%w: body %d of %d bytes", ErrShortFrame, len(payload), h.DataLength)
	}
	payload = payload[:h.DataLength]
	var body Body
	switch h.MsgID {
	case MsgPlatformStatus:
		body, err = decodePlatformStatus(payload)
	case MsgControl:
		body, err = decodeControl(payload)
	case MsgControlFeedback:
		body, err = decodeControlFeedback(payload)
	case MsgNodeRegistration:
		body, err = decodeNodeRegistration(payload)
	default:
		return h, nil, fmt.Errorf("%w: 0x%04x", ErrUnknownMessage, h.MsgID)
	}
	if err != nil {
		return h, nil, err
	}
	return h, body, nil
}

// readFixed decodes a fixed-size wire struct from p.
func readFixed(p []byte, v any) error {
	if n := binary.Size(v); len(p) < n {
		return fmt.Errorf("%w: body %d of %d bytes", ErrShortFrame, len(p), n)
	}
	return binary.Read(bytes.NewReader(p), binary.LittleEndian, v)
}

package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// PlatformStatus reports the position and state of one platform. Angles are
// in degrees, height in meters, speed in m/s.
type PlatformStatus struct {
	TimeMS       uint64
	ID           uint32
	Longitude    float64
	Latitude     float64
	Height       float64
	Speed        float64
	Course       float64
	Roll         float64
	Pitch        float64
	Amount       uint8
	Kind         int8
	Type         int16
	CommanderID  uint32
	FormationID  uint32
	Task         uint8
	EnergyRemain int8
	WeaponKind   int8
	WeaponAmount uint8
	HealthState  int8
}

// platformStatusWire is the scaled 51-byte body.
type platformStatusWire struct {
	Time         uint64
	ID           uint32
	Longitude    int32 // 1e-6 deg
	Latitude     int32 // 1e-6 deg
	Height       int32 // 0.01 m
	Speed        int16 // 0.01 m/s
	Course       int32 // 0.01 deg
	Roll         int16 // 0.01 deg
	Pitch        int16 // 0.01 deg
	Amount       uint8
	Kind         int8
	Type         int16
	CommanderID  uint32
	FormationID  uint32
	Task         uint8
	EnergyRemain int8
	WeaponKind   int8
	WeaponAmount uint8
	HealthState  int8
}

func (PlatformStatus) MsgID() uint16 { return MsgPlatformStatus }

func (s PlatformStatus) encode(b *bytes.Buffer) error {
	w := platformStatusWire{
		Time:         s.TimeMS,
		ID:           s.ID,
		Longitude:    int32(math.Round(s.Longitude * 1e6)),
		Latitude:     int32(math.Round(s.Latitude * 1e6)),
		Height:       int32(math.Round(s.Height * 100)),
		Speed:        clamp16(s.Speed * 100),
		Course:       int32(math.Round(s.Course * 100)),
		Roll:         clamp16(s.Roll * 100),
		Pitch:        clamp16(s.Pitch * 100),
		Amount:       s.Amount,
		Kind:         s.Kind,
		Type:         s.Type,
		CommanderID:  s.CommanderID,
		FormationID:  s.FormationID,
		Task:         s.Task,
		EnergyRemain: s.EnergyRemain,
		WeaponKind:   s.WeaponKind,
		WeaponAmount: s.WeaponAmount,
		HealthState:  s.HealthState,
	}
	return binary.Write(b, binary.LittleEndian, w)
}

func decodePlatformStatus(p []byte) (PlatformStatus, error) {
	var w platformStatusWire
	if err := readFixed(p, &w); err != nil {
		return PlatformStatus{}, err
	}
	return PlatformStatus{
		TimeMS:       w.Time,
		ID:           w.ID,
		Longitude:    float64(w.Longitude) / 1e6,
		Latitude:     float64(w.Latitude) / 1e6,
		Height:       float64(w.Height) / 100,
		Speed:        float64(w.Speed) / 100,
		Course:       float64(w.Course) / 100,
		Roll:         float64(w.Roll) / 100,
		Pitch:        float64(w.Pitch) / 100,
		Amount:       w.Amount,
		Kind:         w.Kind,
		Type:         w.Type,
		CommanderID:  w.CommanderID,
		FormationID:  w.FormationID,
		Task:         w.Task,
		EnergyRemain: w.EnergyRemain,
		WeaponKind:   w.WeaponKind,
		WeaponAmount: w.WeaponAmount,
		HealthState:  w.HealthState,
	}, nil
}

func clamp16(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}

// ControlType is the command carried by a control message.
type ControlType int8

const (
	ControlStart ControlType = iota + 1
	ControlPause
	ControlResume
	ControlStop
	ControlReturnHome
)

func (c ControlType) String() string {
	switch c {
	case ControlStart:
		return "start"
	case ControlPause:
		return "pause"
	case ControlResume:
		return "resume"
	case ControlStop:
		return "stop"
	case ControlReturnHome:
		return "return_home"
	default:
		return fmt.Sprintf("control(%d)", int8(c))
	}
}

// Control is sent by the command node.
type Control struct {
	Type ControlType
}

func (Control) MsgID() uint16 { return MsgControl }

func (c Control) encode(b *bytes.Buffer) error {
	return b.WriteByte(byte(c.Type))
}

func decodeControl(p []byte) (Control, error) {
	var c Control
	err := readFixed(p, &c)
	return c, err
}

// ControlFeedback acknowledges a control message. Result 1 means accepted.
type ControlFeedback struct {
	Type   ControlType
	Result int8
}

func (ControlFeedback) MsgID() uint16 { return MsgControlFeedback }

func (f ControlFeedback) encode(b *bytes.Buffer) error {
	return binary.Write(b, binary.LittleEndian, f)
}

func decodeControlFeedback(p []byte) (ControlFeedback, error) {
	var f ControlFeedback
	err := readFixed(p, &f)
	return f, err
}

// NodeRegistration announces this node to the command node.
type NodeRegistration struct {
	NodeType int8
	IP       string
	Port     uint16
	Name     string
}

type nodeRegistrationWire struct {
	NodeType int8
	IP       [20]byte
	Port     uint16
	Name     [100]byte
}

func (NodeRegistration) MsgID() uint16 { return MsgNodeRegistration }

func (n NodeRegistration) encode(b *bytes.Buffer) error {
	if len(n.IP) > 20 {
		return fmt.Errorf("telemetry: node ip %q longer than 20 bytes", n.IP)
	}
	if len(n.Name) > 100 {
		return fmt.Errorf("telemetry: node name longer than 100 bytes")
	}
	w := nodeRegistrationWire{NodeType: n.NodeType, Port: n.Port}
	copy(w.IP[:], n.IP)
	copy(w.Name[:], n.Name)
	return binary.Write(b, binary.LittleEndian, w)
}

func decodeNodeRegistration(p []byte) (NodeRegistration, error) {
	var w nodeRegistrationWire
	if err := readFixed(p, &w); err != nil {
		return NodeRegistration{}, err
	}
	return NodeRegistration{
		NodeType: w.NodeType,
		IP:       strings.TrimRight(string(w.IP[:]), "\x00"),
		Port:     w.Port,
		Name:     strings.TrimRight(string(w.Name[:]), "\x00"),
	}, nil
}

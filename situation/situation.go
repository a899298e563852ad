// Package situation converts tactical situation files (aircraft positions in
// geographic coordinates) into the attribute snapshot used by the allocator.
// Red aircraft become attack agents A1..An and blue aircraft defense agents
// D1..Dn, in file order.
package situation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kilianp07/taskalloc/core/model"
)

const (
	// EarthRadiusKM is the sphere radius used for the Cartesian projection.
	EarthRadiusKM = 6371.0
	// MaxSpeed maps to mobility 1.
	MaxSpeed = 1000.0
	// MaxAltitude maps to power 1.
	MaxAltitude = 10000.0
)

// Aircraft is one platform of a situation file.
type Aircraft struct {
	ID        string  `json:"id" yaml:"id"`
	Type      string  `json:"type" yaml:"type"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
	Speed     float64 `json:"speed" yaml:"speed"`
	Heading   float64 `json:"heading" yaml:"heading"`
	Status    string  `json:"status" yaml:"status"`
}

// Situation is the content of a situation file.
type Situation struct {
	Red  []Aircraft `json:"red_aircraft" yaml:"red_aircraft"`
	Blue []Aircraft `json:"blue_aircraft" yaml:"blue_aircraft"`
}

// State is the Cartesian position and velocity of an aircraft.
type State struct {
	Position r3.Vec
	Velocity r3.Vec
}

// ToCartesian projects a onto a sphere of EarthRadiusKM. Altitude is kept as
// the z coordinate and the velocity lies in the horizontal plane.
func ToCartesian(a Aircraft) State {
	lat := a.Latitude * math.Pi / 180
	lon := a.Longitude * math.Pi / 180
	heading := a.Heading * math.Pi / 180
	return State{
		Position: r3.Vec{
			X: EarthRadiusKM * math.Cos(lat) * math.Cos(lon),
			Y: EarthRadiusKM * math.Cos(lat) * math.Sin(lon),
			Z: a.Altitude,
		},
		Velocity: r3.Vec{X: a.Speed * math.Sin(heading), Y: a.Speed * math.Cos(heading)},
	}
}

// Converter turns situations into snapshots. The zero value measures
// distances to the origin.
type Converter struct {
	Target r3.Vec
}

// Attributes derives the normalized attributes of a.
func (c Converter) Attributes(id string, a Aircraft) model.AgentAttributes {
	s := ToCartesian(a)
	return model.AgentAttributes{
		ID:               id,
		Mobility:         clampUnit(r3.Norm(s.Velocity) / MaxSpeed),
		Power:            clampUnit(s.Position.Z / MaxAltitude),
		DistanceToTarget: r3.Norm(r3.Sub(s.Position, c.Target)),
	}
}

// Conversion is a snapshot together with the aircraft behind each agent id.
type Conversion struct {
	Snapshot model.Snapshot
	Sources  map[string]Aircraft
}

// Convert builds the snapshot of sit.
func (c Converter) Convert(sit Situation) (Conversion, error) {
	out := Conversion{Sources: make(map[string]Aircraft, len(sit.Red)+len(sit.Blue))}
	attack := make([]model.AgentAttributes, len(sit.Red))
	for i, a := range sit.Red {
		id := fmt.Sprintf("A%d", i+1)
		attack[i] = c.Attributes(id, a)
		out.Sources[id] = a
	}
	defense := make([]model.AgentAttributes, len(sit.Blue))
	for i, a := range sit.Blue {
		id := fmt.Sprintf("D%d", i+1)
		defense[i] = c.Attributes(id, a)
		out.Sources[id] = a
	}
	snap, err := model.NewSnapshot(attack, defense)
	if err != nil {
		return Conversion{}, fmt.Errorf("situation: %w", err)
	}
	out.Snapshot = snap
	return out, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

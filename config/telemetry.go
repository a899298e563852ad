package config

import (
	"fmt"
	"net"
)

// TelemetryConfig holds settings for the UDP telemetry broadcaster.
type TelemetryConfig struct {
	Enabled bool `json:"enabled"`
	// Remote is the host:port of the command node receiving platform status.
	Remote string `json:"remote"`
	// Local is the address the broadcaster binds to; control messages from
	// the command node arrive here.
	Local          string  `json:"local"`
	SourcePlatform uint32  `json:"source_platform"`
	DestPlatform   uint32  `json:"dest_platform"`
	NodeName       string  `json:"node_name"`
	NodeType       int8    `json:"node_type"`
	OriginLon      float64 `json:"origin_lon"`
	OriginLat      float64 `json:"origin_lat"`
	Altitude       float64 `json:"altitude"`
	MetersPerUnit  float64 `json:"meters_per_unit"`
	AttackBase     uint32  `json:"attack_base"`
	DefenseBase    uint32  `json:"defense_base"`
}

// SetDefaults fills unset fields.
func (c *TelemetryConfig) SetDefaults() {
	if c.Remote == "" {
		c.Remote = "127.0.0.1:9999"
	}
	if c.Local == "" {
		c.Local = "0.0.0.0:0"
	}
	if c.SourcePlatform == 0 {
		c.SourcePlatform = 1
	}
	if c.NodeName == "" {
		c.NodeName = "taskalloc"
	}
	if c.MetersPerUnit == 0 {
		c.MetersPerUnit = 100
	}
	if c.AttackBase == 0 {
		c.AttackBase = 1000
	}
	if c.DefenseBase == 0 {
		c.DefenseBase = 2000
	}
}

// Validate checks addresses and the position scale.
func (c TelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Remote); err != nil {
		return fmt.Errorf("telemetry remote %q: %w", c.Remote, err)
	}
	if _, _, err := net.SplitHostPort(c.Local); err != nil {
		return fmt.Errorf("telemetry local %q: %w", c.Local, err)
	}
	if c.MetersPerUnit <= 0 {
		return fmt.Errorf("telemetry meters_per_unit must be positive")
	}
	if c.AttackBase == c.DefenseBase {
		return fmt.Errorf("telemetry attack_base and defense_base must differ")
	}
	return nil
}

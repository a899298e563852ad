// Package export defines the versioned allocation record shared by every
// consumer of a run: the simulator, the telemetry broadcaster, the MQTT
// publisher and the run log.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/model"
)

// SchemaVersion identifies the record layout.
const SchemaVersion = "taskalloc.allocation/v1"

// ErrSchemaVersion is returned when decoding a record of another schema.
var ErrSchemaVersion = errors.New("export: unsupported schema version")

// Group is one task group with its derived averages.
type Group struct {
	GroupID         int      `json:"group_id" yaml:"group_id"`
	DefenseAgents   []string `json:"defense_agents" yaml:"defense_agents"`
	AttackAgents    []string `json:"attack_agents" yaml:"attack_agents"`
	ShapleyEstimate float64  `json:"shapley_estimate" yaml:"shapley_estimate"`
	GroupSize       int      `json:"group_size" yaml:"group_size"`
	AttackLoad      int      `json:"attack_load" yaml:"attack_load"`
	AvgMobility     float64  `json:"avg_mobility" yaml:"avg_mobility"`
	AvgPower        float64  `json:"avg_power" yaml:"avg_power"`
	AvgDistance     float64  `json:"avg_distance" yaml:"avg_distance"`
}

// Metadata carries the counts of a run.
type Metadata struct {
	TotalAgents   int    `json:"total_agents" yaml:"total_agents"`
	AttackAgents  int    `json:"attack_agents" yaml:"attack_agents"`
	DefenseAgents int    `json:"defense_agents" yaml:"defense_agents"`
	Groups        int    `json:"groups" yaml:"groups"`
	Mode          string `json:"shapley_mode" yaml:"shapley_mode"`
	Samples       int    `json:"samples" yaml:"samples"`
	Rebalanced    bool   `json:"rebalanced" yaml:"rebalanced"`
	Residual      bool   `json:"residual_imbalance" yaml:"residual_imbalance"`
	DurationMS    int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Record is the exported outcome of one allocation run.
type Record struct {
	Schema        string                    `json:"schema" yaml:"schema"`
	RunID         string                    `json:"run_id" yaml:"run_id"`
	CreatedAt     time.Time                 `json:"created_at" yaml:"created_at"`
	Metadata      Metadata                  `json:"metadata" yaml:"metadata"`
	Groups        []Group                   `json:"groups" yaml:"groups"`
	Shapley       map[string]float64        `json:"shapley" yaml:"shapley"`
	Threat        map[string]float64        `json:"threat" yaml:"threat"`
	Attributes    []model.AgentAttributes   `json:"attributes" yaml:"attributes"`
	BalanceBefore allocation.BalanceMetrics `json:"balance_before" yaml:"balance_before"`
	BalanceAfter  allocation.BalanceMetrics `json:"balance_after" yaml:"balance_after"`
	Moves         []allocation.Move         `json:"moves" yaml:"moves"`
}

// FromResult freezes an engine result into a record.
func FromResult(res *allocation.Result) Record {
	attrs := make(map[string]model.AgentAttributes, res.Attributes.Len())
	echo := make([]model.AgentAttributes, 0, res.Attributes.Len())
	for _, a := range res.Attributes.Attack {
		attrs[a.ID] = a
		echo = append(echo, a)
	}
	for _, d := range res.Attributes.Defense {
		attrs[d.ID] = d
		echo = append(echo, d)
	}

	groups := make([]Group, len(res.Groups))
	for i, g := range res.Groups {
		members := g.Members()
		mob := make([]float64, len(members))
		pow := make([]float64, len(members))
		dist := make([]float64, len(members))
		for j, id := range members {
			mob[j], pow[j], dist[j] = attrs[id].Mobility, attrs[id].Power, attrs[id].DistanceToTarget
		}
		groups[i] = Group{
			GroupID:         g.GroupID,
			DefenseAgents:   append([]string{}, g.DefenseAgents...),
			AttackAgents:    append([]string{}, g.AttackAgents...),
			ShapleyEstimate: g.ShapleyEstimate,
			GroupSize:       g.Size(),
			AttackLoad:      g.AttackLoad(),
			AvgMobility:     stat.Mean(mob, nil),
			AvgPower:        stat.Mean(pow, nil),
			AvgDistance:     stat.Mean(dist, nil),
		}
	}

	return Record{
		Schema:    SchemaVersion,
		RunID:     res.RunID,
		CreatedAt: res.CreatedAt.Round(0).UTC(),
		Metadata: Metadata{
			TotalAgents:   res.Attributes.Len(),
			AttackAgents:  len(res.Attributes.Attack),
			DefenseAgents: len(res.Attributes.Defense),
			Groups:        len(res.Groups),
			Mode:          res.Mode.String(),
			Samples:       res.Samples,
			Rebalanced:    res.Rebalanced,
			Residual:      res.Residual,
			DurationMS:    res.Duration.Milliseconds(),
		},
		Groups:        groups,
		Shapley:       copyTable(res.Shapley),
		Threat:        copyTable(res.Threat),
		Attributes:    echo,
		BalanceBefore: res.Before,
		BalanceAfter:  res.After,
		Moves:         append([]allocation.Move{}, res.Moves...),
	}
}

func copyTable[M ~map[string]float64](in M) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Membership maps every agent id to its group id.
func (r Record) Membership() map[string]int {
	out := make(map[string]int)
	for _, g := range r.Groups {
		for _, id := range g.DefenseAgents {
			out[id] = g.GroupID
		}
		for _, id := range g.AttackAgents {
			out[id] = g.GroupID
		}
	}
	return out
}

// Group returns the group with the given id.
func (r Record) Group(id int) (Group, bool) {
	for _, g := range r.Groups {
		if g.GroupID == id {
			return g, true
		}
	}
	return Group{}, false
}

// Snapshot rebuilds the attribute snapshot echoed in the record.
func (r Record) Snapshot() (model.Snapshot, error) {
	var attack, defense []model.AgentAttributes
	for _, a := range r.Attributes {
		if a.Role == model.RoleDefense {
			defense = append(defense, a)
		} else {
			attack = append(attack, a)
		}
	}
	return model.NewSnapshot(attack, defense)
}

// Validate checks the schema tag.
func (r Record) Validate() error {
	if r.Schema != SchemaVersion {
		return fmt.Errorf("%w: %q", ErrSchemaVersion, r.Schema)
	}
	return nil
}

// WriteJSON writes the record to w as indented JSON.
func WriteJSON(w io.Writer, rec Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// ReadJSON decodes one record and checks its schema.
func ReadJSON(r io.Reader) (Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("export: decode json: %w", err)
	}
	return rec, rec.Validate()
}

// WriteYAML writes the record to w as YAML.
func WriteYAML(w io.Writer, rec Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	return enc.Close()
}

// ReadYAML decodes one YAML record and checks its schema.
func ReadYAML(r io.Reader) (Record, error) {
	var rec Record
	if err := yaml.NewDecoder(r).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("export: decode yaml: %w", err)
	}
	return rec, rec.Validate()
}

// WriteCSV writes one row per agent: id, role, group, Shapley value, threat
// score (empty for defense agents) and the echoed attributes.
func WriteCSV(w io.Writer, rec Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"agent_id", "role", "group_id", "shapley", "threat", "mobility", "power", "distance_to_target"}); err != nil {
		return err
	}
	membership := rec.Membership()
	attrs := append([]model.AgentAttributes(nil), rec.Attributes...)
	sort.SliceStable(attrs, func(i, j int) bool {
		return membership[attrs[i].ID] < membership[attrs[j].ID]
	})
	ff := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	for _, a := range attrs {
		threat := ""
		if t, ok := rec.Threat[a.ID]; ok {
			threat = ff(t)
		}
		row := []string{
			a.ID,
			a.Role.String(),
			strconv.Itoa(membership[a.ID]),
			ff(rec.Shapley[a.ID]),
			threat,
			ff(a.Mobility),
			ff(a.Power),
			ff(a.DistanceToTarget),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

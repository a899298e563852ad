package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/model"
)

func sampleRecord(t *testing.T) Record {
	t.Helper()
	snap, err := model.NewSnapshot(
		[]model.AgentAttributes{
			{ID: "A1", Mobility: 1, Power: 1, DistanceToTarget: 45},
			{ID: "A2", Mobility: 0.2, Power: 0.2, DistanceToTarget: 50},
			{ID: "A3", Mobility: 0.2, Power: 0.2, DistanceToTarget: 50},
		},
		[]model.AgentAttributes{
			{ID: "D1", Mobility: 0.5, Power: 0.5, DistanceToTarget: 50},
			{ID: "D2", Mobility: 0.5, Power: 0.5, DistanceToTarget: 50},
		},
	)
	require.NoError(t, err)
	e, err := allocation.NewEngine(allocation.DefaultParams())
	require.NoError(t, err)
	res, err := e.Allocate(snap)
	require.NoError(t, err)
	return FromResult(res)
}

func TestFromResult(t *testing.T) {
	rec := sampleRecord(t)
	assert.Equal(t, SchemaVersion, rec.Schema)
	assert.Equal(t, 5, rec.Metadata.TotalAgents)
	assert.Equal(t, 2, rec.Metadata.Groups)
	assert.Equal(t, "exact", rec.Metadata.Mode)
	assert.Len(t, rec.Attributes, 5)
	assert.Len(t, rec.Shapley, 5)
	assert.Len(t, rec.Threat, 3)

	total := 0
	for _, g := range rec.Groups {
		total += g.AttackLoad
		assert.Equal(t, len(g.DefenseAgents)+len(g.AttackAgents), g.GroupSize)
		assert.Greater(t, g.AvgDistance, 0.0)
	}
	assert.Equal(t, 3, total)

	m := rec.Membership()
	assert.Len(t, m, 5)
	g, ok := rec.Group(m["A1"])
	require.True(t, ok)
	assert.Equal(t, "A1", g.AttackAgents[0])
}

func TestJSONRoundTrip(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rec))

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Membership(), got.Membership())
	assert.Equal(t, rec.Shapley, got.Shapley)
	assert.Equal(t, rec.Groups, got.Groups)
	assert.Equal(t, rec.Attributes, got.Attributes)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestYAMLRoundTrip(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, rec))
	assert.Contains(t, buf.String(), "schema: "+SchemaVersion)

	got, err := ReadYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Membership(), got.Membership())
	assert.Equal(t, rec.Shapley, got.Shapley)
	assert.Equal(t, rec.Groups, got.Groups)
	assert.Equal(t, rec.BalanceAfter, got.BalanceAfter)
}

func TestReadRejectsOtherSchema(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`{"schema":"taskalloc.allocation/v0"}`))
	assert.ErrorIs(t, err, ErrSchemaVersion)
	_, err = ReadYAML(strings.NewReader("schema: other\n"))
	assert.ErrorIs(t, err, ErrSchemaVersion)
}

func TestSnapshotFromRecord(t *testing.T) {
	rec := sampleRecord(t)
	snap, err := rec.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Attack, 3)
	assert.Len(t, snap.Defense, 2)
	assert.Equal(t, "D1", snap.Defense[0].ID)
}

func TestWriteCSV(t *testing.T) {
	rec := sampleRecord(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rec))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "agent_id", rows[0][0])
	for _, row := range rows[1:] {
		if row[1] == "defense" {
			assert.Empty(t, row[4])
		} else {
			assert.NotEmpty(t, row[4])
		}
	}
}

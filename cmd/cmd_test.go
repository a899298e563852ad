package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taskalloc/pkg/export"
	"github.com/kilianp07/taskalloc/simulator"
)

const situationFile = "../situation/testdata/three_vs_two.json"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	data := "run_log:\n  backend: jsonl\n  path: " + filepath.Join(dir, "runs.jsonl") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAllocateJSON(t *testing.T) {
	out, err := execute(t, "allocate", situationFile, "--config", "", "--no-log", "--format", "json", "--out", "", "--seed", "0")
	require.NoError(t, err)
	rec, err := export.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Metadata.Groups)
	assert.Len(t, rec.Membership(), 5)
}

func TestAllocateCSV(t *testing.T) {
	out, err := execute(t, "allocate", situationFile, "--config", "", "--no-log", "--format", "csv", "--out", "", "--seed", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "agent_id,role,group_id"))
}

func TestAllocateUnknownFormat(t *testing.T) {
	_, err := execute(t, "allocate", situationFile, "--config", "", "--no-log", "--format", "xml", "--out", "", "--seed", "0")
	require.Error(t, err)
}

func TestAllocateThenHistory(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir)
	recFile := filepath.Join(dir, "record.json")

	_, err := execute(t, "allocate", situationFile, "--config", cfgFile, "--no-log=false", "--format", "json", "--out", recFile, "--seed", "0")
	require.NoError(t, err)
	f, err := os.Open(recFile)
	require.NoError(t, err)
	rec, err := export.ReadJSON(f)
	_ = f.Close()
	require.NoError(t, err)

	out, err := execute(t, "history", "--config", cfgFile, "--run", rec.RunID, "--agent", "", "--since", "1h", "--until", "", "--limit", "20", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, rec.RunID)
	assert.Contains(t, out, "RUN")

	out, err = execute(t, "history", "--config", cfgFile, "--run", "", "--agent", "A1", "--since", "", "--until", "", "--limit", "1", "--json=false")
	require.NoError(t, err)
	gid := rec.Membership()["A1"]
	g, ok := rec.Group(gid)
	require.True(t, ok)
	assert.Contains(t, out, g.DefenseAgents[0])
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	recFile := filepath.Join(dir, "record.yaml")
	_, err := execute(t, "allocate", situationFile, "--config", "", "--no-log", "--format", "yaml", "--out", recFile, "--seed", "0")
	require.NoError(t, err)

	out, err := execute(t, "simulate", recFile, "--config", "", "--steps", "6", "--every", "3", "--broadcast=false")
	require.NoError(t, err)
	var steps []int
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var p simulator.Performance
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		steps = append(steps, p.Step)
	}
	assert.Equal(t, []int{0, 3, 6}, steps)
}

func TestSimulateMissingRecord(t *testing.T) {
	_, err := execute(t, "simulate", filepath.Join(t.TempDir(), "nope.json"), "--config", "", "--steps", "1", "--every", "1", "--broadcast=false")
	require.Error(t, err)
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseWhen("2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseWhen("2024-04-30T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), got)

	got, err = parseWhen("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseWhen("yesterday", now)
	require.Error(t, err)
}

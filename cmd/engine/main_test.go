package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/internal/network/networktest"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func alarmFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alarm.yaml")
	require.NoError(t, network.WriteFile(path, networktest.Alarm(t)))
	return path
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "exact", "sample", "dsep", "validate", "adjacency", "structure"} {
		assert.Contains(t, names, want)
	}
}

func TestExactCmd(t *testing.T) {
	out, err := run(t, "exact", "-n", alarmFile(t), "-q", "Burglary", "-e", "JohnCalls=True", "-e", "MaryCalls=True")
	require.NoError(t, err, out)

	var res models.ExactResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Marginals, 1)
	assert.InDelta(t, 0.28417, res.Marginals[0].States[1].Probability, 1e-4)
}

func TestExactCmd_BadEvidence(t *testing.T) {
	_, err := run(t, "exact", "-n", alarmFile(t), "-q", "Burglary", "-e", "JohnCalls")
	assert.Error(t, err)
}

func TestSampleCmd(t *testing.T) {
	path := alarmFile(t)
	out, err := run(t, "sample", "-n", path, "-t", "Alarm", "-e", "JohnCalls=True", "-e", "MaryCalls=True",
		"--iterations", "20000", "--chains", "2", "--seed", "7")
	require.NoError(t, err, out)

	var res models.ApproximateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Distribution)
	assert.InDelta(t, 0.7607, res.Distribution.States[1].Probability, 0.08)

	_, err = run(t, "sample", "-n", path)
	assert.Error(t, err, "target or event is required")
}

func TestDSepCmd(t *testing.T) {
	path := alarmFile(t)
	out, err := run(t, "dsep", "-n", path, "-x", "Burglary", "-y", "Earthquake")
	require.NoError(t, err, out)
	var res models.DSeparationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Separated)

	out, err = run(t, "dsep", "-n", path, "--list", "-z", "Alarm")
	require.NoError(t, err, out)
	assert.Contains(t, out, "JohnCalls ⊥ MaryCalls")
}

func TestValidateCmd(t *testing.T) {
	good := alarmFile(t)
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name": "bad", "variables": []}`), 0o644))

	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good)

	out, err = run(t, "validate", good, bad)
	assert.Error(t, err)
	assert.Contains(t, out, "FAIL "+bad)
}

func TestStructureCmd(t *testing.T) {
	out, err := run(t, "structure", alarmFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "3 cliques, treewidth 2")
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"A=x", " B = y "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "x", "B": "y"}, got)

	_, err = parseAssignments([]string{"A="})
	assert.Error(t, err)
}

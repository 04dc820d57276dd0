package harness

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/ir"
)

func TestSnapshot_OmitsUnsetFields(t *testing.T) {
	got, err := Snapshot("s", []TraceEvent{
		{Seq: 1, Action: ActionRebuild, Outcome: OutcomeOK},
		{
			Seq:         2,
			Action:      ActionEvaluate,
			Args:        ir.IRObject{"target": ir.IRString("t")},
			Outcome:     OutcomeOK,
			Result:      ir.Null,
			Diagnostics: []string{"LOOKUP_FAILED"},
		},
	})
	require.NoError(t, err)

	want := `{"scenario_name":"s","trace":[` +
		`{"action":"rebuild","outcome":"ok","seq":1},` +
		`{"action":"evaluate","args":{"target":"t"},"diagnostics":["LOOKUP_FAILED"],"outcome":"ok","result":null,"seq":2}]}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "duplicate_section.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first.Trace)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAssertGolden_FromResult(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "evaluate_roof.yaml"))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "evaluate_roof", result))
}

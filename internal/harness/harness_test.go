package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/captree/internal/ir"
)

var houseTree = filepath.Join("testdata", "trees", "house.yaml")

func TestScenarios(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(&Scenario{
		Name:  "minimal",
		Tree:  houseTree,
		Steps: []Step{{Action: ActionRebuild}},
	})
	require.NoError(t, err)

	assert.True(t, result.Pass)
	require.Len(t, result.Trace, 1)
	event := result.Trace[0]
	assert.Equal(t, int64(1), event.Seq)
	assert.Equal(t, OutcomeOK, event.Outcome)
	assert.Equal(t, ir.IRObject{
		"updated":   ir.IRArray{ir.IRString("area"), ir.IRString("cost")},
		"unchanged": ir.IRNumber(5),
	}, event.Result)
}

func TestRun_UnexpectedFailureFailsScenario(t *testing.T) {
	result, err := Run(&Scenario{
		Name: "unexpected",
		Tree: houseTree,
		Steps: []Step{
			{Action: ActionDuplicate, Template: "attic", Suffix: 1},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", result.Trace[0].Outcome)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected outcome TEMPLATE_NOT_FOUND")
}

func TestRun_ExpectMismatches(t *testing.T) {
	var wrongValue yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("11"), &wrongValue))

	result, err := Run(&Scenario{
		Name: "mismatch",
		Tree: houseTree,
		Steps: []Step{
			{
				Action: ActionEvaluate,
				Target: "farea",
				Form:   map[string]any{"width": 2, "length": 5},
				Expect: &Expect{Outcome: OutcomeOK, Value: *wrongValue.Content[0]},
			},
			{
				Action: ActionEvaluate,
				Target: "farea",
				Expect: &Expect{Outcome: "NOT_FOUND", Diagnostics: []string{"LOOKUP_FAILED"}},
			},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "value: expected 11, got 10")
	assert.Contains(t, result.Errors[1], "outcome: expected NOT_FOUND, got ok")
	assert.Contains(t, result.Errors[2], "diagnostics: expected [LOOKUP_FAILED]")
}

func TestRun_CopySharedTablesArg(t *testing.T) {
	result, err := Run(&Scenario{
		Name:  "copy_shared",
		Tree:  houseTree,
		Steps: []Step{{Action: ActionDuplicate, Template: "section", CopySharedTables: true}},
	})
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	args := result.Trace[0].Args
	assert.Equal(t, ir.IRNumber(1), args["suffix"])
	assert.Equal(t, ir.IRBool(true), args["copy_shared_tables"])
}

func TestRun_OperationIDOverride(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "op",
		Tree:        houseTree,
		OperationID: "op-fixed",
		Steps:       []Step{{Action: ActionDuplicate, Template: "section", Suffix: 4}},
	})
	require.NoError(t, err)

	summary, ok := result.Trace[0].Result.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("op-fixed"), summary["operation"])
	assert.Equal(t, ir.IRString("section-4"), summary["root"])
}

func TestRun_MissingTree(t *testing.T) {
	_, err := Run(&Scenario{
		Name:  "missing",
		Tree:  filepath.Join(t.TempDir(), "gone.yaml"),
		Steps: []Step{{Action: ActionRebuild}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load tree")
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "ERROR", outcomeOf(assert.AnError))
}

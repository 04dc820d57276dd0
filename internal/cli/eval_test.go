package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captree/internal/evaluator"
	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/store"
)

func TestEval_SetPairs(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)

	out := e.mustRun("--format", "json", "eval", "farea", "--set", "width=2", "--set", "length=5")
	res := decodeData[map[string]any](t, out)
	assert.Equal(t, "farea", res["target"])
	assert.Equal(t, 10.0, res["value"])
	assert.NotContains(t, res, "saved_to")
}

func TestEval_FormFile(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)
	form := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(form, []byte("width: 3\nlength: 4\n"), 0644))

	out := e.mustRun("eval", "farea", "--form", form)
	assert.Equal(t, "farea = 12\n", out)

	// --set wins over the file.
	out = e.mustRun("eval", "farea", "--form", form, "--set", "length=10")
	assert.Equal(t, "farea = 30\n", out)
}

func TestEval_Save(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)

	out := e.mustRun("--format", "json", "eval", "farea", "--set", "width=2", "--set", "length=5", "--save")
	res := decodeData[map[string]any](t, out)
	assert.Equal(t, "area", res["saved_to"])

	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()

	area, err := st.FindNode(context.Background(), "area")
	require.NoError(t, err)
	require.NotNil(t, area.CalculatedValue)
	assert.Equal(t, "10", *area.CalculatedValue)
}

func TestEval_UnknownTarget(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)

	out, err := e.run("--format", "json", "eval", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestEval_BadSetPair(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("--format", "json", "eval", "farea", "--set", "width")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidInput, decodeResponse(t, out).Error.Code)
}

func TestLoadForm(t *testing.T) {
	form := filepath.Join(t.TempDir(), "form.json")
	require.NoError(t, os.WriteFile(form, []byte(`{"width": 2.5, "facing": "Sud", "tags": ["a"]}`), 0644))

	got, err := loadForm(form, []string{"pitch=Pente 30", " width = 4"})
	require.NoError(t, err)

	want := evaluator.FormData{
		"width":  ir.IRString(" 4"),
		"facing": ir.IRString("Sud"),
		"tags":   ir.IRArray{ir.IRString("a")},
		"pitch":  ir.IRString("Pente 30"),
	}
	assert.Equal(t, want, got)

	_, err = loadForm("", []string{"=1"})
	assert.ErrorContains(t, err, `expected key=value`)

	_, err = loadForm(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read form file")
}

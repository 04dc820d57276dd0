package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinksRebuild_NothingChanged(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)

	out := e.mustRun("--format", "json", "links", "rebuild", "house")
	res := decodeData[LinksResult](t, out)

	assert.Equal(t, "house", res.Tree)
	assert.Empty(t, res.Updated)
	assert.Equal(t, 7, res.Unchanged)
	assert.Empty(t, res.Cycles)
}

func TestLinksRebuild_Text(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", houseFile)

	out := e.mustRun("links", "rebuild", "house")
	assert.Contains(t, out, "Tree house: 0 updated, 7 unchanged")
}

func TestLinksRebuild_UnknownTree(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("--format", "json", "links", "rebuild", "barn")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "tree barn not found", resp.Error.Message)
}

func TestLinksRebuild_RequiresTree(t *testing.T) {
	e := newEnv(t)

	_, err := e.run("links", "rebuild")
	require.Error(t, err)
}

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caskdb/caskdb/internal/wire"
)

func frame(parts ...string) wire.Value {
	vals := make([]wire.Value, len(parts))
	for i, p := range parts {
		vals[i] = wire.Value{Type: wire.TypeBulkString, Str: p}
	}
	return wire.Value{Type: wire.TypeArray, Array: vals}
}

func TestFromFrame_RecognizesEachCommand(t *testing.T) {
	cmd, err := FromFrame(frame("SET", "foo", "bar"))
	require.NoError(t, err)
	assert.Equal(t, Set, cmd.Kind)
	assert.Equal(t, "foo", cmd.Key)
	assert.Equal(t, "bar", cmd.Value)

	cmd, err = FromFrame(frame("GET", "foo"))
	require.NoError(t, err)
	assert.Equal(t, Get, cmd.Kind)

	cmd, err = FromFrame(frame("PING"))
	require.NoError(t, err)
	assert.Equal(t, Ping, cmd.Kind)

	cmd, err = FromFrame(frame("KEYS"))
	require.NoError(t, err)
	assert.Nil(t, cmd.Pattern)

	cmd, err = FromFrame(frame("KEYS", "^a"))
	require.NoError(t, err)
	require.NotNil(t, cmd.Pattern)
	assert.Equal(t, "^a", *cmd.Pattern)

	cmd, err = FromFrame(frame("COMMAND", "DOCS"))
	require.NoError(t, err)
	assert.Equal(t, CommandDocs, cmd.Kind)
}

func TestFromFrame_IsCaseSensitiveOnFramedPath(t *testing.T) {
	_, err := FromFrame(frame("ping"))
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestFromFrame_WrongArityIsUnrecognized(t *testing.T) {
	_, err := FromFrame(frame("GET"))
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, err = FromFrame(frame("SET", "onlykey"))
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestFromText_IsCaseInsensitive(t *testing.T) {
	cmd, err := FromText([]string{"set", "foo", "bar"})
	require.NoError(t, err)
	assert.Equal(t, Set, cmd.Kind)

	cmd, err = FromText([]string{"PiNg"})
	require.NoError(t, err)
	assert.Equal(t, Ping, cmd.Kind)
}

func TestCompilePattern_InvalidRegexErrors(t *testing.T) {
	_, err := CompilePattern("(unterminated")
	assert.Error(t, err)
}

func TestCompilePattern_SubstringMatch(t *testing.T) {
	re, err := CompilePattern("^a")
	require.NoError(t, err)
	assert.True(t, re.MatchString("alpha"))
	assert.False(t, re.MatchString("beta"))
}

func TestDocs_CoverEveryCommand(t *testing.T) {
	names := map[string]bool{}
	for _, d := range Docs {
		names[d.Name] = true
		assert.NotEmpty(t, d.Lines)
	}
	for _, want := range []string{"PING", "QUIT", "DBSIZE", "GET", "SET", "KEYS", "ECHO", "COMMAND"} {
		assert.True(t, names[want], "missing doc for %s", want)
	}
}

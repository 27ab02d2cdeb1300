package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_SimpleString(t *testing.T) {
	v, n, err := Decode([]byte("+OK\r\n"))
	require.NoError(t, err)
	assert.Equal(t, byte(TypeSimpleString), v.Type)
	assert.Equal(t, "OK", v.Str)
	assert.Equal(t, 5, n)
}

func TestDecode_Error(t *testing.T) {
	v, _, err := Decode([]byte("-ERR bad\r\n"))
	require.NoError(t, err)
	assert.Equal(t, byte(TypeError), v.Type)
	assert.Equal(t, "ERR bad", v.Str)
}

func TestDecode_Integer(t *testing.T) {
	v, _, err := Decode([]byte(":1000\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Num)

	v, _, err = Decode([]byte(":-5\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v.Num)
}

func TestDecode_BulkString(t *testing.T) {
	v, n, err := Decode([]byte("$5\r\nhello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Str)
	assert.Equal(t, 11, n)
	assert.False(t, v.Null)
}

func TestDecode_NullBulkString(t *testing.T) {
	v, _, err := Decode([]byte("$-1\r\n"))
	require.NoError(t, err)
	assert.True(t, v.Null)
}

func TestDecode_BulkStringNegativeLengthIsMalformed(t *testing.T) {
	_, _, err := Decode([]byte("$-2\r\nxx\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_Array(t *testing.T) {
	v, n, err := Decode([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	require.Len(t, v.Array, 2)
	assert.Equal(t, "GET", v.Array[0].Str)
	assert.Equal(t, "foo", v.Array[1].Str)
	assert.Equal(t, 22, n)
}

func TestDecode_UnknownTypeIsMalformed(t *testing.T) {
	_, _, err := Decode([]byte("?nope\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

// P6: any prefix of a valid framed command yields Incomplete, and
// appending the rest yields the full value with no carried state.
func TestDecode_IncompletePrefixesNeedNoCarriedState(t *testing.T) {
	full := []byte("*2\r\n$3\r\nGET\r\n$5\r\nhello\r\n")
	for i := 0; i < len(full); i++ {
		prefix := full[:i]
		_, _, err := Decode(prefix)
		assert.ErrorIsf(t, err, ErrIncomplete, "prefix length %d should be incomplete", i)
	}

	v, n, err := Decode(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	assert.Equal(t, "GET", v.Array[0].Str)
	assert.Equal(t, "hello", v.Array[1].Str)
}

// P8: framing symmetry — encode then decode reproduces the value.
func TestEncodeDecodeSymmetry(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.WriteBulkString([]byte("hello")))
	v, n, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Str)
	assert.Equal(t, buf.Len(), n)
}

func TestEncoder_WriteArray(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.WriteArray([][]byte{[]byte("alpha")}))
	assert.Equal(t, "*1\r\n$5\r\nalpha\r\n", buf.String())
}

func TestEncoder_WriteNullAndInteger(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.WriteNull())
	require.NoError(t, enc.WriteInteger(42))
	assert.Equal(t, "$-1\r\n:42\r\n", buf.String())
}

// P7: pipelining — two concatenated commands decode in order.
func TestDecode_Pipelining(t *testing.T) {
	input := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")

	v1, n1, err := Decode(input)
	require.NoError(t, err)
	assert.Equal(t, "PING", v1.Array[0].Str)

	v2, n2, err := Decode(input[n1:])
	require.NoError(t, err)
	assert.Equal(t, "PING", v2.Array[0].Str)
	assert.Equal(t, len(input), n1+n2)
}

func TestDecodeText_Basic(t *testing.T) {
	tokens, n, err := DecodeText([]byte("SET foo bar\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar"}, tokens)
	assert.Equal(t, len("SET foo bar\r\n"), n)
}

func TestDecodeText_CaseInsensitiveVerbPreserved(t *testing.T) {
	tokens, _, err := DecodeText([]byte("ping\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, tokens)
}

func TestDecodeText_IncompleteWithoutTerminator(t *testing.T) {
	_, _, err := DecodeText([]byte("GET fo"))
	assert.ErrorIs(t, err, ErrIncomplete)
}

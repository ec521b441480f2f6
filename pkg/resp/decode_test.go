package resp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f Frame) {
	t.Helper()
	wire := Encode(f)

	n, err := ExpectLength(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n, "expect_length must equal len(encode(f))")

	buf := append([]byte(nil), wire...)
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(got), "decode(encode(f)) must equal f")
	assert.Empty(t, buf, "decode must consume exactly one frame's worth of bytes")
}

func TestRoundTripAllVariants(t *testing.T) {
	frames := []Frame{
		NewSimpleString("OK"),
		NewSimpleError("ERR nope"),
		NewInteger(0),
		NewInteger(1234),
		NewInteger(-100),
		NewInteger(math.MinInt64),
		NewInteger(math.MaxInt64),
		NewBulkString("hello"),
		NewBulkString(""),
		NewNullBulkString(),
		NewArray([]Frame{NewBulkString("a"), NewBulkString("b")}),
		NewArray(nil),
		NewNullArray(),
		NewNull(),
		NewBoolean(true),
		NewBoolean(false),
		NewDouble(3.5),
		NewDouble(-0.25),
		NewMap([]MapEntry{{Key: "hello", Value: NewBulkString("world")}, {Key: "foo", Value: NewBulkString("bar")}}),
		NewSet([]Frame{NewInteger(1), NewInteger(2)}),
	}
	for _, f := range frames {
		roundTrip(t, f)
	}
}

func TestDecodeIncompleteOnEveryProperPrefix(t *testing.T) {
	full := Encode(NewArray([]Frame{NewBulkString("set"), NewBulkString("hello"), NewBulkString("world")}))
	for n := 0; n < len(full); n++ {
		prefix := append([]byte(nil), full[:n]...)
		original := append([]byte(nil), prefix...)
		_, err := Decode(&prefix)
		assert.ErrorIs(t, err, ErrIncomplete, "prefix of length %d must be Incomplete", n)
		assert.Equal(t, original, prefix, "Incomplete must not consume any bytes")
	}
}

func TestDecodeLeavesTrailingBytesInBuffer(t *testing.T) {
	a := Encode(NewSimpleString("OK"))
	b := []byte("$5\r\nworld\r\n")
	buf := append(append([]byte(nil), a...), b...)

	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(NewSimpleString("OK")))
	assert.Equal(t, b, buf)
}

func TestDecodeNullBulkDoesNotRoundTripToEmptyBulk(t *testing.T) {
	buf := []byte("$-1\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, NullBulkString, f.Kind)
	assert.False(t, f.Equal(NewBulkString("")))
}

func TestDecodeNullArrayDoesNotRoundTripToEmptyArray(t *testing.T) {
	buf := []byte("*-1\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, NullArray, f.Kind)
	assert.False(t, f.Equal(NewArray(nil)))
}

func TestSetLimitsAppliesToSubsequentDecodes(t *testing.T) {
	defer SetLimits(DefaultLimits())

	SetLimits(Limits{MaxFrameBytes: 4, MaxNestingDepth: DefaultLimits().MaxNestingDepth, MaxContainerElements: DefaultLimits().MaxContainerElements})

	buf := []byte("$5\r\nhello\r\n")
	_, err := Decode(&buf)
	require.Error(t, err)
	var lenErr *FrameLengthError
	assert.ErrorAs(t, err, &lenErr)

	SetLimits(DefaultLimits())
	buf = []byte("$5\r\nhello\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(NewBulkString("hello")))
}

func TestSetLimitsEnforcesNestingDepth(t *testing.T) {
	defer SetLimits(DefaultLimits())

	SetLimits(Limits{MaxFrameBytes: DefaultLimits().MaxFrameBytes, MaxNestingDepth: 1, MaxContainerElements: DefaultLimits().MaxContainerElements})

	buf := []byte("*1\r\n*1\r\n*1\r\n:+1\r\n")
	_, err := Decode(&buf)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)
}

func TestDecodeInvalidFrameType(t *testing.T) {
	buf := []byte("!oops\r\n")
	_, err := Decode(&buf)
	require.Error(t, err)
	var typeErr *FrameTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestDecodeInvalidBulkLength(t *testing.T) {
	buf := []byte("$abc\r\nxxx\r\n")
	_, err := Decode(&buf)
	require.Error(t, err)
	var lenErr *FrameLengthError
	assert.ErrorAs(t, err, &lenErr)
}

func TestDecodeEmptyBufferIsIncomplete(t *testing.T) {
	buf := []byte{}
	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrIncomplete)
}

// End-to-end scenarios from the byte-exact decoder/command specification.

func TestScenarioGetHelloDecodesToArray(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nget\r\n$5\r\nhello\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Array, f.Kind)
	require.Len(t, f.Array, 2)
	assert.Equal(t, "get", string(f.Array[0].Bulk))
	assert.Equal(t, "hello", string(f.Array[1].Bulk))
}

func TestScenarioPartialSetThenCompletion(t *testing.T) {
	partial := []byte("*2\r\n$3\r\nset\r\n")
	_, err := Decode(&partial)
	assert.ErrorIs(t, err, ErrIncomplete)

	full := append(append([]byte(nil), partial...), []byte("$5\r\nhello\r\n")...)
	f, err := Decode(&full)
	require.NoError(t, err)
	require.Equal(t, Array, f.Kind)
	require.Len(t, f.Array, 2)
	assert.Equal(t, "set", string(f.Array[0].Bulk))
	assert.Equal(t, "hello", string(f.Array[1].Bulk))
}

func TestScenarioMapRoundTrip(t *testing.T) {
	buf := []byte("%2\r\n+hello\r\n$5\r\nworld\r\n+foo\r\n$3\r\nbar\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Map, f.Kind)
	require.Len(t, f.Map, 2)
	assert.Equal(t, "hello", f.Map[0].Key)
	assert.Equal(t, "world", string(f.Map[0].Value.Bulk))
	assert.Equal(t, "foo", f.Map[1].Key)
	assert.Equal(t, "bar", string(f.Map[1].Value.Bulk))

	// encoding the decoded value must reproduce the exact original bytes.
	assert.Equal(t, "%2\r\n+hello\r\n$5\r\nworld\r\n+foo\r\n$3\r\nbar\r\n", string(Encode(f)))
}

func TestScenarioSetOfMixedFrames(t *testing.T) {
	buf := []byte("~2\r\n*2\r\n:+1234\r\n#t\r\n$5\r\nworld\r\n")
	f, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Set, f.Kind)
	require.Len(t, f.Array, 2)

	inner := f.Array[0]
	require.Equal(t, Array, inner.Kind)
	require.Len(t, inner.Array, 2)
	assert.EqualValues(t, 1234, inner.Array[0].Int)
	assert.True(t, inner.Array[1].Bool)

	assert.Equal(t, "world", string(f.Array[1].Bulk))

	// encoding the decoded value must reproduce the exact original bytes.
	original := "~2\r\n*2\r\n:+1234\r\n#t\r\n$5\r\nworld\r\n"
	assert.Equal(t, original, string(Encode(f)))
}

func TestDecodeLossyUTF8InSimpleString(t *testing.T) {
	buf := append([]byte("+"), 0xff, 0xfe)
	buf = append(buf, '\r', '\n')
	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, SimpleString, f.Kind)
	assert.Contains(t, f.Str, "�")
}

package cursor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRoundTrip(t *testing.T) {
	token, err := EncodeStep(42)
	require.NoError(t, err)

	parsed, err := DecodeStep(token)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, 42, parsed.Index)
}

func TestNilTokenDecodesToNil(t *testing.T) {
	parsed, err := DecodeStep(nil)
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestWrongTypeRejected(t *testing.T) {
	token, err := Encode("offset", map[string]int{"offset": 7})
	require.NoError(t, err)

	_, err = DecodeStep(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected step cursor")
}

func TestGarbageTokenRejected(t *testing.T) {
	_, err := Decode(Token("not base64!!"))
	require.Error(t, err)
}

func TestAge(t *testing.T) {
	token, err := EncodeStep(0)
	require.NoError(t, err)

	age, err := Age(token)
	require.NoError(t, err)
	assert.Less(t, age, time.Minute)

	age, err = Age(nil)
	require.NoError(t, err)
	assert.Zero(t, age)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")

	// Missing file means no cursor.
	token, err := ReadFile(path)
	require.NoError(t, err)
	assert.Nil(t, token)

	written, err := EncodeStep(3)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, written))

	token, err = ReadFile(path)
	require.NoError(t, err)
	parsed, err := DecodeStep(token)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, 3, parsed.Index)
}

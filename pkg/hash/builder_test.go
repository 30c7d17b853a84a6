package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDeterministic(t *testing.T) {
	a := NewBuilder().PutString("MIXER").PutU64(7).PutBool(true).Sum32()
	b := NewBuilder().PutString("MIXER").PutU64(7).PutBool(true).Sum32()
	assert.Equal(t, a, b)
}

func TestBuilderLengthPrefixPreventsAmbiguity(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	a := NewBuilder().PutString("ab").PutString("c").Sum32()
	b := NewBuilder().PutString("a").PutString("bc").Sum32()
	assert.NotEqual(t, a, b)
}

func TestBuilderReset(t *testing.T) {
	d := NewBuilder().PutString("x")
	d.Reset()
	assert.Equal(t, NewBuilder().Sum32(), d.Sum32())
}

func TestPutHexBytesNormalizes(t *testing.T) {
	a, err := NewBuilder().PutHexBytes("0xDEADBEEF")
	require.NoError(t, err)
	b, err2 := NewBuilder().PutHexBytes("deadbeef")
	require.NoError(t, err2)
	assert.Equal(t, a.Sum32(), b.Sum32())

	_, err = NewBuilder().PutHexBytes("0xnothex")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("SANCTIONED", "0xAbC", 9)
	assert.Equal(t, base, Fingerprint("SANCTIONED", "  0xabc ", 9),
		"address is case and whitespace insensitive")

	assert.NotEqual(t, base, Fingerprint("MIXER", "0xabc", 9))
	assert.NotEqual(t, base, Fingerprint("SANCTIONED", "0xabd", 9))
	assert.NotEqual(t, base, Fingerprint("SANCTIONED", "0xabc", 8))
	assert.NotEmpty(t, base.Hex())
}

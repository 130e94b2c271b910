package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	kp := MustKeypair()
	id := kp.Identity()

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrInvalidBase58)

	// "0" 不在 base58 字母表里
	_, err = Parse("0OIl")
	assert.ErrorIs(t, err, ErrInvalidBase58)

	_, err = Parse("3mJr7AoUXx2Wqd")
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestZeroIdentity(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.Equal(t, "11111111111111111111111111111111", Zero.String())

	parsed, err := Parse(Zero.String())
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidLength)

	raw := make([]byte, Size)
	raw[0] = 7
	id, err := FromBytes(raw)
	require.NoError(t, err)
	raw[0] = 9 // 拷贝后不受外部修改影响
	assert.Equal(t, byte(7), id[0])
	assert.Equal(t, byte(7), id.Bytes()[0])
}

func TestFromSeedDeterministic(t *testing.T) {
	assert.Equal(t, FromSeed("token-program"), FromSeed("token-program"))
	assert.NotEqual(t, FromSeed("token-program"), FromSeed("vault-program"))
}

func TestTextMarshal(t *testing.T) {
	id := MustKeypair().Identity()
	data, err := json.Marshal(struct {
		Owner Identity `json:"owner"`
	}{Owner: id})
	require.NoError(t, err)
	assert.Contains(t, string(data), id.String())

	var back struct {
		Owner Identity `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back.Owner)
}

func TestKeypairIsSignable(t *testing.T) {
	kp := MustKeypair()
	assert.True(t, IsOnCurve(kp.Identity()))
	assert.False(t, IsNonSignable(kp.Identity()))

	msg := []byte("deposit 100")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, Verify(kp.Identity(), msg, sig))
	assert.Error(t, Verify(kp.Identity(), []byte("deposit 101"), sig))

	other := MustKeypair()
	assert.Error(t, Verify(other.Identity(), msg, sig))
}

func TestCompareAndShort(t *testing.T) {
	a := Identity{1}
	b := Identity{2}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Equal(Identity{1}))
	assert.Len(t, a.Short(), 10)
	assert.Len(t, a.Hex(), 64)
}

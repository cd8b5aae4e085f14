package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHash = "$argon2id$v=19$m=65536,t=3,p=2$00112233445566778899aabbccddeeff$aabbccdd"

func TestPasswordService(t *testing.T) {
	passwords := NewPasswordService()

	hash, err := passwords.HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))

	other, err := passwords.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "every hash gets its own salt")

	valid, err := passwords.VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = passwords.VerifyPassword("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = passwords.HashPassword("")
	assert.Error(t, err)
}

func TestParseArgon2Hash(t *testing.T) {
	params, salt, hash, err := parseArgon2Hash(sampleHash)
	require.NoError(t, err)
	assert.Equal(t, uint32(65536), params.memory)
	assert.Equal(t, uint32(3), params.iterations)
	assert.Equal(t, uint8(2), params.parallelism)
	assert.Len(t, salt, 16)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, hash)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=3,p=2$00$aa",
		"$argon2id$v=18$m=65536,t=3,p=2$00$aa",
		"$argon2id$v=19$m=x,t=3,p=2$00$aa",
		"$argon2id$v=19$m=65536,t=3,p=2$zz$aa",
		"$argon2id$v=19$m=65536,t=3,p=2$00$",
	} {
		_, _, _, err := parseArgon2Hash(encoded)
		assert.Error(t, err, encoded)
	}
}

package security

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestAESEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("allergic to penicillin"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "penicillin")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "allergic to penicillin", string(plain))

	again, err := enc.Encrypt([]byte("allergic to penicillin"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")
}

func TestAESEncryptor_Errors(t *testing.T) {
	_, err := NewAESEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte{1, 2})
	assert.ErrorIs(t, err, ErrDecryption)

	sealed, err := enc.Encrypt([]byte("x"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestParseAESKey(t *testing.T) {
	enc, err := ParseAESKey("")
	require.NoError(t, err)
	assert.Nil(t, enc)

	_, err = ParseAESKey("%%%")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	enc, err = ParseAESKey(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestSealString(t *testing.T) {
	enc, err := NewAESEncryptor(testKey())
	require.NoError(t, err)

	sealed, err := SealString(enc, "follow-up in two weeks")
	require.NoError(t, err)
	assert.NotEqual(t, "follow-up in two weeks", sealed)

	opened, err := OpenString(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, "follow-up in two weeks", opened)

	clear, err := SealString(nil, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", clear)

	empty, err := SealString(enc, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = OpenString(enc, "not base64!")
	assert.ErrorIs(t, err, ErrDecryption)
}

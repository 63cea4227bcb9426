package seal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	s := New("correct horse battery staple")

	sealed, err := s.Seal([]byte("api-key-123"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "api-key-123")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("api-key-123"), opened)
}

func TestSealUniquePayloads(t *testing.T) {
	s := New("p")

	a, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh salt and nonce per seal")
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := New("right").Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = New("wrong").Open(sealed)
	assert.Error(t, err)
}

func TestOpenTamperedPayload(t *testing.T) {
	s := New("p")
	sealed, err := s.Seal([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = s.Open(sealed)
	assert.Error(t, err)
}

func TestOpenMalformedPayload(t *testing.T) {
	s := New("p")

	for _, payload := range [][]byte{nil, {}, []byte("short"), make([]byte, saltSize+2)} {
		_, err := s.Open(payload)
		assert.ErrorIs(t, err, ErrMalformed)
	}
}

package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDSASignerRoundTrip(t *testing.T) {
	s, err := NewECDSASignerFromHex("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362ea")
	require.NoError(t, err)

	sig, err := s.Sign([]byte("sign me"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.NotEmpty(t, s.PublicKey())
}

func TestFakeSignerEchoesMessage(t *testing.T) {
	f := &Fake{PublicKeyValue: "pub"}
	sig, err := f.Sign([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "616263", sig)
	assert.Equal(t, "pub", f.PublicKey())
}

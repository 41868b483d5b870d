package signer

import "encoding/hex"

// Fake is a deterministic Provider for tests: it "signs" by hex-encoding
// the message verbatim, so assertions can check the signed payload
// without real cryptography.
type Fake struct {
	PublicKeyValue string
}

var _ Provider = (*Fake)(nil)

func (f *Fake) Sign(message []byte) (string, error) {
	return hex.EncodeToString(message), nil
}

func (f *Fake) PublicKey() string {
	return f.PublicKeyValue
}

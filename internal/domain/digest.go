package domain

import (
	"encoding/hex"
	"strings"
)

// Digest is the fingerprint of the fully reassembled resource.
type Digest struct {
	Algorithm string
	Sum       []byte
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum)
}

// Label returns a display name such as "SHA-256".
func (d Digest) Label() string {
	a := strings.ToUpper(d.Algorithm)
	if strings.HasPrefix(a, "SHA") && !strings.HasPrefix(a, "SHA-") {
		return "SHA-" + strings.TrimPrefix(a, "SHA")
	}
	return a
}

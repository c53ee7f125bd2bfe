package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// PrefixLength is the number of hex characters used when a fingerprint
// appears in storage paths. The full fingerprint is always carried inside
// stored artifacts and verified on read, so the short prefix is only a
// human-inspectable directory name.
const PrefixLength = 8

// Fingerprint is the SHA-256 hex digest of an input's raw bytes. It is the
// cache identity of the input: same bytes, same fingerprint.
type Fingerprint string

// Compute derives the fingerprint of the given bytes.
func Compute(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FromReader derives the fingerprint of everything readable from r.
func FromReader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// String returns the full hex digest.
func (f Fingerprint) String() string {
	return string(f)
}

// Prefix returns the short form used in storage paths.
func (f Fingerprint) Prefix() string {
	if len(f) < PrefixLength {
		return string(f)
	}
	return string(f[:PrefixLength])
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

package artifactstore

import (
	"github.com/opencontainers/go-digest"
)

// SHA256Digest formats data as a canonical "sha256:<hex>" digest string,
// used for both file_hash and structural_hash so identical content always
// reads identically regardless of which field produced it.
func SHA256Digest(data []byte) string {
	return digest.FromBytes(data).String()
}

// SHA256DigestString is a convenience wrapper over SHA256Digest for text input.
func SHA256DigestString(s string) string {
	return digest.FromString(s).String()
}

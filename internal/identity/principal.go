// Package identity provides the session principal used to attribute
// simulation requests, and the providers that obtain it.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"filippo.io/edwards25519"
)

// Principal is the opaque textual identity of an authenticated caller.
type Principal string

// AnonymousPrincipal is the textual form of the anonymous identity.
const AnonymousPrincipal Principal = "2vxsx-fae"

const selfAuthenticatingSuffix = 0x02

var (
	// ErrInvalidPublicKey is returned for keys that are not points on edwards25519.
	ErrInvalidPublicKey = errors.New("invalid ed25519 public key")

	principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// String returns the textual principal.
func (p Principal) String() string {
	return string(p)
}

// IsAnonymous reports whether p carries no identity.
func (p Principal) IsAnonymous() bool {
	return p == "" || p == AnonymousPrincipal
}

// PrincipalFromBytes renders raw principal bytes in textual form:
// base32 of crc32(raw) || raw, lower case, grouped by five with dashes.
func PrincipalFromBytes(raw []byte) Principal {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)

	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(enc))
		b.WriteString(enc[i:end])
	}
	return Principal(b.String())
}

// SelfAuthenticating derives the principal owned by pub:
// sha224 of the DER encoded public key followed by the 0x02 suffix.
func SelfAuthenticating(pub ed25519.PublicKey) (Principal, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}

	sum := sha256.Sum224(der)
	raw := append(sum[:], selfAuthenticatingSuffix)
	return PrincipalFromBytes(raw), nil
}

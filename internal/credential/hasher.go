package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	secretBytes     = 32
	lookupPrefixLen = 8
)

// Hasher mints secrets and derives their lookup prefix and one-way hash.
// Hashes are keyed BLAKE2b-256 digests so a leaked table cannot be checked
// against guesses without the pepper.
type Hasher struct {
	prefix string
	key    [32]byte
}

// NewHasher builds a hasher for secrets of the form "<prefix>_<random>".
func NewHasher(prefix, pepper string) *Hasher {
	return &Hasher{prefix: prefix, key: blake2b.Sum256([]byte(pepper))}
}

// Generate returns a new plaintext secret and its lookup prefix.
func (h *Hasher) Generate() (secret, lookup string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("credential: read random: %w", err)
	}
	random := base64.RawURLEncoding.EncodeToString(buf)
	return h.prefix + "_" + random, random[:lookupPrefixLen], nil
}

// Split checks that secret carries the configured prefix and returns its
// lookup prefix.
func (h *Hasher) Split(secret string) (lookup string, ok bool) {
	random, found := strings.CutPrefix(secret, h.prefix+"_")
	if !found || len(random) < lookupPrefixLen {
		return "", false
	}
	return random[:lookupPrefixLen], true
}

// Hash returns the hex-encoded keyed digest of the full secret.
func (h *Hasher) Hash(secret string) string {
	mac, err := blake2b.New256(h.key[:])
	if err != nil {
		// Only possible with a key longer than 64 bytes.
		panic(err)
	}
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches compares secret against a stored hash in constant time.
func (h *Hasher) Matches(secret, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(secret)), []byte(stored)) == 1
}

package refresh

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"
)

const (
	idRawSize     = 32
	idEncodedSize = 43

	// MaxDigestKeySize is the largest pepper accepted by [NewDigester].
	MaxDigestKeySize = blake2b.Size
)

var (
	// ErrMalformedID is returned by [Parse] for strings that cannot be refresh ids.
	ErrMalformedID = errors.New("refresh: malformed id")
	// ErrMalformedFamilyID is returned by [ParseFamilyID].
	ErrMalformedFamilyID = errors.New("refresh: malformed family id")
)

// NewID returns a fresh, unguessable refresh id.
func NewID() (string, error) {
	var raw [idRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Parse checks that id has the shape produced by [NewID].
func Parse(id string) error {
	if len(id) != idEncodedSize {
		return ErrMalformedID
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil || len(raw) != idRawSize {
		return ErrMalformedID
	}
	return nil
}

// NewFamilyID returns a ULID for a new session line.
func NewFamilyID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseFamilyID validates a family id and returns the time it was created.
func ParseFamilyID(familyID string) (time.Time, error) {
	id, err := ulid.ParseStrict(familyID)
	if err != nil {
		return time.Time{}, ErrMalformedFamilyID
	}
	return ulid.Time(id.Time()), nil
}

// Digester maps refresh ids to the storage identifiers used as record keys.
// It is safe for concurrent use.
type Digester struct {
	key []byte
}

// NewDigester creates a digester keyed with pepper. An empty pepper yields an
// unkeyed BLAKE2b-256 digest.
func NewDigester(pepper []byte) (*Digester, error) {
	if len(pepper) > MaxDigestKeySize {
		return nil, fmt.Errorf("refresh: digest key longer than %d bytes", MaxDigestKeySize)
	}
	key := make([]byte, len(pepper))
	copy(key, pepper)
	return &Digester{key: key}, nil
}

// Digest returns the hex-encoded keyed digest of id.
func (d *Digester) Digest(id string) string {
	h := d.newHash()
	_, _ = h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Digester) newHash() hash.Hash {
	var key []byte
	if d != nil {
		key = d.key
	}
	// Only fails for keys longer than 64 bytes, which NewDigester rejects.
	h, err := blake2b.New256(key)
	if err != nil {
		panic(err)
	}
	return h
}

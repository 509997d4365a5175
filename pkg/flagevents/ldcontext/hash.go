package ldcontext

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/randalmurphal/flagevents/pkg/flagevents/canonical"
)

// Digest encodings understood by Hasher implementations in this package.
const (
	EncodingBase64 = "base64"
	EncodingHex    = "hex"
)

// Hasher is an incremental hash primitive.
type Hasher interface {
	Update(text string)
	Digest(encoding string) (string, error)
}

// HasherFactory returns a fresh Hasher. One Hasher is used per context.
type HasherFactory func() Hasher

// hashHasher adapts a hash.Hash to Hasher.
type hashHasher struct {
	h hash.Hash
}

// NewHashHasher adapts any hash.Hash.
func NewHashHasher(h hash.Hash) Hasher {
	return &hashHasher{h: h}
}

// NewBLAKE3Hasher returns a BLAKE3 Hasher. It is the default.
func NewBLAKE3Hasher() Hasher {
	return NewHashHasher(blake3.New())
}

// NewXXHasher returns an xxHash64 Hasher. It is fast but 64-bit, so
// collisions are more likely across very large context populations.
func NewXXHasher() Hasher {
	return NewHashHasher(xxhash.New())
}

// NewSHA256Hasher returns a SHA-256 Hasher.
func NewSHA256Hasher() Hasher {
	return NewHashHasher(sha256.New())
}

func (h *hashHasher) Update(text string) {
	// hash.Hash.Write never returns an error.
	_, _ = h.h.Write([]byte(text))
}

func (h *hashHasher) Digest(encoding string) (string, error) {
	sum := h.h.Sum(nil)
	switch encoding {
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(sum), nil
	case EncodingHex:
		return hex.EncodeToString(sum), nil
	default:
		return "", fmt.Errorf("unsupported digest encoding %q", encoding)
	}
}

// HashContext returns a content fingerprint of c, or false when c is not a
// valid context or contains a reference cycle.
//
// The whole context is hashed, _meta included. Attribute order never affects
// the result, but array order does, and so does the order of
// _meta.privateAttributes. A legacy user and the same user with an explicit
// "user" kind hash differently, as do a one-kind multi-context and the
// equivalent single-kind context.
//
// The hash buckets summaries; it is not a privacy-preserving digest.
func HashContext(ctx context.Context, c Context, h Hasher) (string, bool) {
	if err := ctx.Err(); err != nil {
		return "", false
	}
	if Validate(c) != nil {
		return "", false
	}
	text, err := canonical.Canonicalize(map[string]any(c))
	if err != nil {
		return "", false
	}
	h.Update(text)
	digest, err := h.Digest(EncodingBase64)
	if err != nil {
		return "", false
	}
	return digest, true
}

// Package imagestore defines the content-addressed image object store.
//
// Images are addressed by the SHA256 of their bytes. The canonical layout
// shards objects by the first two hash bytes: <root>/<B0>/<B1>/<hex>, where
// B0 and B1 are two-character uppercase hex. Profile updates stage uploads
// under a temporary path keyed by the declared hash and commit atomically,
// so a half-written image is never visible under its address.
package imagestore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path"
)

// Store is a content-addressed binary object store.
//
// Implementations must be safe for concurrent use. Put is idempotent:
// storing bytes that already exist under their hash is a no-op.
type Store interface {
	// Put stores data under its SHA256 address and returns the hash.
	Put(ctx context.Context, data []byte) ([]byte, error)

	// Get returns the bytes stored under hash.
	// Returns ErrImageNotFound when no object exists.
	Get(ctx context.Context, hash []byte) ([]byte, error)

	// Exists reports whether an object is stored under hash.
	Exists(ctx context.Context, hash []byte) (bool, error)

	// Delete removes the object under hash. Deleting a missing object is
	// not an error; image reaping runs repeatedly and must be idempotent.
	Delete(ctx context.Context, hash []byte) error

	// Close releases backend resources.
	Close() error
}

// Errors returned by image stores.
var (
	// ErrImageNotFound is returned when no object exists under a hash.
	ErrImageNotFound = errors.New("image not found")

	// ErrHashMismatch is returned when staged bytes do not hash to the
	// address they were declared under.
	ErrHashMismatch = errors.New("image bytes do not match declared hash")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("image store is closed")
)

// HashSize is the length of an image address in bytes.
const HashSize = sha256.Size

// HashOf returns the SHA256 address of data.
func HashOf(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ObjectKey returns the sharded relative key of a hash:
// "<B0>/<B1>/<hex>" with uppercase shard directories and lowercase hex name.
func ObjectKey(hash []byte) (string, error) {
	if len(hash) != HashSize {
		return "", fmt.Errorf("image hash must be %d bytes, got %d", HashSize, len(hash))
	}
	return path.Join(
		fmt.Sprintf("%02X", hash[0]),
		fmt.Sprintf("%02X", hash[1]),
		fmt.Sprintf("%x", hash),
	), nil
}

// VerifyHash checks that data hashes to the declared address.
func VerifyHash(data, declared []byte) error {
	if len(declared) != HashSize {
		return fmt.Errorf("%w: declared hash has %d bytes", ErrHashMismatch, len(declared))
	}
	sum := sha256.Sum256(data)
	for i := range sum {
		if sum[i] != declared[i] {
			return ErrHashMismatch
		}
	}
	return nil
}

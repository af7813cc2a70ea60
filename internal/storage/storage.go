// Package storage holds uploaded evidence files.
//
// Objects are content addressed within an owner namespace: the key is a short
// BLAKE2b digest of the owner, then the BLAKE2b-256 digest of the bytes, then
// the file extension. The same user uploading the same file twice writes the
// same object; two users never share one.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when deleting or opening a missing object.
var ErrNotFound = errors.New("storage: object not found")

// Store is a blob store for evidence files.
type Store interface {
	// Put writes the object and returns a URL a browser can fetch it from.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key derives the object key for content uploaded by owner. The extension is
// taken from the original file name and may be empty.
func Key(owner string, content []byte, name string) string {
	ns := blake2b.Sum256([]byte(owner))
	sum := blake2b.Sum256(content)
	key := hex.EncodeToString(ns[:4]) + "-" + hex.EncodeToString(sum[:])
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 10 {
		key += ext
	}
	return key
}

// validKey rejects keys that could escape a directory or bucket prefix.
func validKey(key string) bool {
	return key != "" &&
		!strings.Contains(key, "/") &&
		!strings.Contains(key, `\`) &&
		!strings.HasPrefix(key, ".")
}

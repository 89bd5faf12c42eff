// Package replay stores replay files named by the md5 of their contents.
package replay

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/bancho-server/internal/domain"
)

var errNotFound = domain.ErrReplayNotFound

// Store holds content addressed replay files. Deleting or opening a missing
// hash reports domain.ErrReplayNotFound.
type Store interface {
	Put(ctx context.Context, hash string, data []byte) error
	Open(ctx context.Context, hash string) (io.ReadCloser, error)
	Delete(ctx context.Context, hash string) error
}

// Hash returns the content address of data, or "" for empty data
func Hash(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// validHash guards file names built from client supplied hashes
func validHash(hash string) error {
	if len(hash) != md5.Size*2 {
		return fmt.Errorf("%w: bad replay hash %q", domain.ErrInvalidRequest, hash)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("%w: bad replay hash %q", domain.ErrInvalidRequest, hash)
	}
	return nil
}

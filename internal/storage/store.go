// Package storage moves job artifacts between the local host and the
// exchange location a remote runner can reach. Two drivers exist: an
// S3-compatible bucket and GitHub releases.
package storage

import (
	"context"
	"fmt"
)

// Ref identifies one stored artifact. It is opaque to callers: only the
// store that produced it can resolve it.
type Ref struct {
	// Driver names the store that owns the ref.
	Driver string `json:"driver"`

	// Key is the object key or release tag.
	Key string `json:"key"`

	// Name is the artifact file name within the key.
	Name string `json:"name"`

	// URL is a presigned transfer URL for the remote side, when the
	// driver supports one.
	URL string `json:"url,omitempty"`
}

func (r Ref) String() string {
	return r.Driver + ":" + r.Key + "/" + r.Name
}

// Store is the artifact exchange contract.
type Store interface {
	// Name returns the driver name.
	Name() string

	// Upload stores a local file and returns its ref. Files above the
	// store's size limit are rejected before any bytes move.
	Upload(ctx context.Context, path string) (Ref, error)

	// OutputRef derives the companion location where the remote job
	// must publish its result for an uploaded input.
	OutputRef(ctx context.Context, in Ref) (Ref, error)

	// Download fetches a ref into destDir and returns the local path.
	Download(ctx context.Context, ref Ref, destDir string) (string, error)

	// Remove deletes a stored artifact.
	Remove(ctx context.Context, ref Ref) error
}

// ErrTooLarge wraps size-guard rejections.
type ErrTooLarge struct {
	Size  int64
	Limit int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("artifact size %d exceeds upload limit %d", e.Size, e.Limit)
}

// checkSize enforces the upload size guard. A non-positive limit disables
// the guard.
func checkSize(size, limit int64) error {
	if limit > 0 && size > limit {
		return &ErrTooLarge{Size: size, Limit: limit}
	}
	return nil
}

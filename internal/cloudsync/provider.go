// Package cloudsync replicates the favorites snapshot through a cloud
// storage provider: download, merge remote-wins, upload.
package cloudsync

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a provider when no snapshot exists yet at the
// given address.
var ErrNotFound = errors.New("cloudsync: snapshot not found")

// Metadata describes the remote copy of a snapshot.
type Metadata struct {
	LastModified time.Time
	Size         int64
	Version      string
}

// Provider stores one snapshot blob per address.
type Provider interface {
	// Name identifies the provider in status reports and logs.
	Name() string

	// Authenticated reports whether the provider holds usable credentials.
	Authenticated() bool

	// Download fetches the snapshot for address, or ErrNotFound.
	Download(ctx context.Context, address string) ([]byte, error)

	// Upload replaces the snapshot for address.
	Upload(ctx context.Context, address string, data []byte) error

	// Metadata describes the remote snapshot for address, or ErrNotFound.
	Metadata(ctx context.Context, address string) (*Metadata, error)

	// Delete removes the remote snapshot for address. Deleting a snapshot
	// that does not exist is not an error.
	Delete(ctx context.Context, address string) error

	// SignOut discards the stored credentials.
	SignOut() error
}

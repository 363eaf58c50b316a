// Package objectstore is the minimal storage-backend interface the control
// plane uploads wasm artifacts through. Callers never branch on the
// concrete variant; build_url is the only operation whose result depends on
// configuration, and it is purely a function of (configured template, path).
package objectstore

import "context"

// Store is implemented by Fs and S3. Every method maps 1:1 onto the wire
// contract in SPEC_FULL.md §6.
type Store interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	// BuildURL produces a URL a worker can GET to fetch the artifact at
	// name. It never performs I/O.
	BuildURL(name string) string
}

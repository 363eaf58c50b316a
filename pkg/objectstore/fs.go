package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/landctl/pkg/apierr"
)

// Fs stores artifacts under a local directory. Grounded on the teacher's
// pkg/volume/local.go LocalDriver: one file per key under a root directory,
// os.MkdirAll on write, no attempt at sharding.
type Fs struct {
	root        string
	urlTemplate string // e.g. "http://localhost:8080/artifacts/{name}"
}

// NewFs creates an Fs rooted at root. urlTemplate must contain "{name}",
// substituted with the (url-escaped) object name in BuildURL.
func NewFs(root, urlTemplate string) *Fs {
	return &Fs{root: root, urlTemplate: urlTemplate}
}

func (f *Fs) path(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(name))
}

func (f *Fs) Write(ctx context.Context, name string, data []byte) error {
	p := f.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apierr.Upstream("create artifact directory", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return apierr.Upstream("write artifact", err)
	}
	return nil
}

func (f *Fs) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if os.IsNotExist(err) {
		return nil, apierr.NotFound("artifact")
	}
	if err != nil {
		return nil, apierr.Upstream("read artifact", err)
	}
	return data, nil
}

func (f *Fs) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(f.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apierr.Upstream("stat artifact", err)
	}
	return true, nil
}

func (f *Fs) Delete(ctx context.Context, name string) error {
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return apierr.Upstream("delete artifact", err)
	}
	return nil
}

func (f *Fs) BuildURL(name string) string {
	return strings.Replace(f.urlTemplate, "{name}", name, 1)
}

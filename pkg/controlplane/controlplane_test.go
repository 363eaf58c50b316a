package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/internal/config"
	"github.com/cuemby/landctl/pkg/configstore"
	"github.com/cuemby/landctl/pkg/objectstore"
	"github.com/cuemby/landctl/pkg/repository"
)

type fakeRepo struct {
	repository.Repository

	settings map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{settings: make(map[string]string)}
}

func (r *fakeRepo) GetSetting(ctx context.Context, name string) (string, bool, error) {
	v, ok := r.settings[name]
	return v, ok, nil
}

func (r *fakeRepo) SetSetting(ctx context.Context, name, value string) error {
	r.settings[name] = value
	return nil
}

func (r *fakeRepo) ListSettingNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(r.settings))
	for n := range r.settings {
		names = append(names, n)
	}
	return names, nil
}

func TestBuildObjectStore_FsWhenConfigured(t *testing.T) {
	repo := newFakeRepo()
	cs := configstore.New(repo, nil)
	ctx := context.Background()

	require.NoError(t, cs.SetStorageType(ctx, configstore.StorageType{Type: "fs"}))
	require.NoError(t, cs.SetStorageFS(ctx, configstore.StorageFS{LocalPath: t.TempDir(), LocalURLTemplate: "http://localhost/{name}"}))

	store, err := buildObjectStore(ctx, cs, config.Config{})
	require.NoError(t, err)

	_, ok := store.(*objectstore.Fs)
	assert.True(t, ok, "expected an *objectstore.Fs backend")
}

func TestBuildObjectStore_S3MissingSettingErrors(t *testing.T) {
	repo := newFakeRepo()
	cs := configstore.New(repo, nil)
	ctx := context.Background()

	require.NoError(t, cs.SetStorageType(ctx, configstore.StorageType{Type: "s3"}))

	_, err := buildObjectStore(ctx, cs, config.Config{})
	assert.Error(t, err, "storage-type=s3 with no storage-s3 setting must fail, not silently fall back")
}

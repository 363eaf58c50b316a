// Package configstore is a typed wrapper over Repository's settings table:
// one method per recognized setting, matching the teacher's storage.Store
// convention of narrow, capability-scoped methods that never leak the
// underlying driver (here, that the value column is actually a JSON string).
package configstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/secretbox"
)

// Setting names recognized by the store. This is a closed set; any other
// name is rejected by Set.
const (
	SettingDomainSettings     = "domain-settings"
	SettingStorageType        = "storage-type"
	SettingStorageFS          = "storage-fs"
	SettingStorageS3          = "storage-s3"
	SettingPrometheusSettings = "prometheus-settings"
	SettingClerkJWKS          = "clerk_jwks"
	SettingDeployDefaults     = "deploy-defaults"
)

// DomainSettings is the domain-settings value.
type DomainSettings struct {
	DomainSuffix string `json:"domain_suffix"`
	HTTPProtocol string `json:"http_protocol"`
}

// StorageType is the storage-type value.
type StorageType struct {
	Type string `json:"type"` // "fs" or "s3"
}

// StorageFS is the storage-fs value.
type StorageFS struct {
	LocalPath        string `json:"local_path"`
	LocalURLTemplate string `json:"local_url_template"`
}

// StorageS3 is the storage-s3 value. AccessKey/SecretKey are stored
// encrypted (via secretbox) in the underlying settings row and are
// plaintext only in memory, on this struct, after Get.
type StorageS3 struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Directory string `json:"directory,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DeployDefaults is the (ADDED) deploy-defaults value, §4.1/§3 of
// SPEC_FULL.md.
type DeployDefaults struct {
	CPULimit         float64 `json:"cpu_limit"`
	MemoryLimitMB    int64   `json:"memory_limit_mb"`
	FetchLimitSecond int     `json:"fetch_limit_seconds"`
}

var defaultDomainSettings = DomainSettings{DomainSuffix: "localhost", HTTPProtocol: "http"}
var defaultDeployDefaults = DeployDefaults{CPULimit: 1.0, MemoryLimitMB: 128, FetchLimitSecond: 30}

// Store is the typed ConfigStore.
type Store struct {
	repo repository.Repository
	box  *secretbox.Box
}

// New constructs a Store. box may be nil; GetStorageS3/SetStorageS3 then
// operate on access_key/secret_key in plaintext (used in tests and in any
// deployment that opts out of at-rest encryption).
func New(repo repository.Repository, box *secretbox.Box) *Store {
	return &Store{repo: repo, box: box}
}

// EnsureDefaults installs domain-settings and deploy-defaults if absent,
// matching spec.md §4.1's boot-time default installation.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	if _, ok, err := s.repo.GetSetting(ctx, SettingDomainSettings); err != nil {
		return err
	} else if !ok {
		if err := s.SetDomainSettings(ctx, defaultDomainSettings); err != nil {
			return err
		}
	}
	if _, ok, err := s.repo.GetSetting(ctx, SettingDeployDefaults); err != nil {
		return err
	} else if !ok {
		if err := s.SetDeployDefaults(ctx, defaultDeployDefaults); err != nil {
			return err
		}
	}
	return nil
}

// GetDomainSettings returns the current value, defaulting when absent.
func (s *Store) GetDomainSettings(ctx context.Context) (DomainSettings, error) {
	var v DomainSettings
	ok, err := s.get(ctx, SettingDomainSettings, &v)
	if err != nil {
		return DomainSettings{}, err
	}
	if !ok {
		return defaultDomainSettings, nil
	}
	return v, nil
}

// SetDomainSettings upserts the domain-settings value.
func (s *Store) SetDomainSettings(ctx context.Context, v DomainSettings) error {
	return s.set(ctx, SettingDomainSettings, v)
}

// GetStorageType returns the current value. The zero value's Type is "".
func (s *Store) GetStorageType(ctx context.Context) (StorageType, error) {
	var v StorageType
	_, err := s.get(ctx, SettingStorageType, &v)
	return v, err
}

// SetStorageType upserts the storage-type value.
func (s *Store) SetStorageType(ctx context.Context, v StorageType) error {
	return s.set(ctx, SettingStorageType, v)
}

// GetStorageFS returns the current value.
func (s *Store) GetStorageFS(ctx context.Context) (StorageFS, bool, error) {
	var v StorageFS
	ok, err := s.get(ctx, SettingStorageFS, &v)
	return v, ok, err
}

// SetStorageFS upserts the storage-fs value.
func (s *Store) SetStorageFS(ctx context.Context, v StorageFS) error {
	return s.set(ctx, SettingStorageFS, v)
}

// GetStorageS3 returns the current value with AccessKey/SecretKey
// decrypted when the Store was constructed with a non-nil secretbox.Box.
func (s *Store) GetStorageS3(ctx context.Context) (StorageS3, bool, error) {
	var v StorageS3
	ok, err := s.get(ctx, SettingStorageS3, &v)
	if err != nil || !ok {
		return v, ok, err
	}
	if s.box != nil {
		if v.AccessKey, err = s.box.OpenString(v.AccessKey); err != nil {
			return StorageS3{}, false, apierr.Upstream("decrypt storage-s3 access_key", err)
		}
		if v.SecretKey, err = s.box.OpenString(v.SecretKey); err != nil {
			return StorageS3{}, false, apierr.Upstream("decrypt storage-s3 secret_key", err)
		}
	}
	return v, true, nil
}

// SetStorageS3 upserts the storage-s3 value, encrypting AccessKey/SecretKey
// when the Store was constructed with a non-nil secretbox.Box.
func (s *Store) SetStorageS3(ctx context.Context, v StorageS3) error {
	if s.box != nil {
		sealed, err := s.box.SealString(v.AccessKey)
		if err != nil {
			return apierr.Upstream("encrypt storage-s3 access_key", err)
		}
		v.AccessKey = sealed
		sealed, err = s.box.SealString(v.SecretKey)
		if err != nil {
			return apierr.Upstream("encrypt storage-s3 secret_key", err)
		}
		v.SecretKey = sealed
	}
	return s.set(ctx, SettingStorageS3, v)
}

// GetPrometheusSettings returns the raw setting value, undecoded: its shape
// is owned by pkg/metrics, not configstore.
func (s *Store) GetPrometheusSettings(ctx context.Context) (string, bool, error) {
	return s.repo.GetSetting(ctx, SettingPrometheusSettings)
}

// GetClerkJWKS returns the raw clerk_jwks setting value.
func (s *Store) GetClerkJWKS(ctx context.Context) (string, bool, error) {
	return s.repo.GetSetting(ctx, SettingClerkJWKS)
}

// GetDeployDefaults returns the current value, defaulting when absent.
func (s *Store) GetDeployDefaults(ctx context.Context) (DeployDefaults, error) {
	var v DeployDefaults
	ok, err := s.get(ctx, SettingDeployDefaults, &v)
	if err != nil {
		return DeployDefaults{}, err
	}
	if !ok {
		return defaultDeployDefaults, nil
	}
	return v, nil
}

// SetDeployDefaults upserts the deploy-defaults value.
func (s *Store) SetDeployDefaults(ctx context.Context, v DeployDefaults) error {
	return s.set(ctx, SettingDeployDefaults, v)
}

// ListNames enumerates known setting names.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	return s.repo.ListSettingNames(ctx)
}

func (s *Store) get(ctx context.Context, name string, dst interface{}) (bool, error) {
	raw, ok, err := s.repo.GetSetting(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, apierr.Upstream(fmt.Sprintf("decode setting %q", name), err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, name string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apierr.Upstream(fmt.Sprintf("encode setting %q", name), err)
	}
	return s.repo.SetSetting(ctx, name, string(raw))
}

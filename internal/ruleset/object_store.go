package ruleset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/port"
)

// ObjectStore reads rule sets from object storage using the same naming
// as FSStore, under a key prefix.
type ObjectStore struct {
	storage port.ObjectStorage
	bucket  string
	prefix  string
	active  string
}

// NewObjectStore returns a store over bucket/prefix.
func NewObjectStore(storage port.ObjectStorage, bucket, prefix, active string) *ObjectStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectStore{storage: storage, bucket: bucket, prefix: prefix, active: active}
}

func (s *ObjectStore) key(version, ext string) string {
	return s.prefix + version + ext
}

func (s *ObjectStore) Get(ctx context.Context, version string) (*domain.RuleSetRecord, error) {
	if !versionRe.MatchString(version) {
		return nil, fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
	}
	raw, err := s.storage.Download(ctx, s.bucket, s.key(version, definitionExt))
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
		}
		return nil, fmt.Errorf("objectStore.Get: %w", err)
	}
	codes, err := s.storage.Download(ctx, s.bucket, s.key(version, codesExt))
	if err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		return nil, fmt.Errorf("objectStore.Get: %w", err)
	}
	if len(codes) > 0 {
		if raw, err = mergeRaw(raw, codes); err != nil {
			return nil, err
		}
	}
	return &domain.RuleSetRecord{Version: version, Definition: raw, IsActive: version == s.active}, nil
}

func (s *ObjectStore) Active(ctx context.Context) (*domain.RuleSetRecord, error) {
	if s.active == "" {
		return nil, fmt.Errorf("%w: no active rule set configured", domain.ErrRuleSetNotFound)
	}
	return s.Get(ctx, s.active)
}

func (s *ObjectStore) List(ctx context.Context) ([]domain.RuleSetRecord, error) {
	keys, err := s.storage.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("objectStore.List: %w", err)
	}
	var versions []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, s.prefix)
		if strings.Contains(name, "/") || strings.HasSuffix(name, codesExt) || !strings.HasSuffix(name, definitionExt) {
			continue
		}
		if v := strings.TrimSuffix(name, definitionExt); versionRe.MatchString(v) {
			versions = append(versions, v)
		}
	}
	sort.Strings(versions)
	out := make([]domain.RuleSetRecord, 0, len(versions))
	for _, v := range versions {
		out = append(out, domain.RuleSetRecord{Version: v, IsActive: v == s.active})
	}
	return out, nil
}

// Publish uploads a definition as <version>.yaml.
func (s *ObjectStore) Publish(ctx context.Context, rec *domain.RuleSetRecord) error {
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.bucket,
		Key:         s.key(rec.Version, definitionExt),
		Body:        bytes.NewReader(rec.Definition),
		ContentType: "application/yaml",
		Size:        int64(len(rec.Definition)),
	})
	if err != nil {
		return fmt.Errorf("objectStore.Publish: %w", err)
	}
	return nil
}

package ruleset

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/port"
)

// DefaultVersion is the rule set built into the binary.
const DefaultVersion = "ubl-invoice-2.1"

const (
	definitionExt = ".yaml"
	codesExt      = ".codes.yaml"
)

//go:embed defaults/*.yaml
var defaults embed.FS

var versionRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FSStore reads rule sets from a file system: <version>.yaml holds the
// definition and an optional <version>.codes.yaml adds code lists.
type FSStore struct {
	fsys   fs.FS
	active string
}

// NewEmbeddedStore returns the store of built-in rule sets.
func NewEmbeddedStore() port.RuleSetStore {
	sub, err := fs.Sub(defaults, "defaults")
	if err != nil {
		panic(err)
	}
	return &FSStore{fsys: sub, active: DefaultVersion}
}

// NewDirStore returns a store over a directory of rule-set files. active
// names the version used when none is requested; if empty, the directory
// must hold exactly one rule set.
func NewDirStore(dir, active string) (port.RuleSetStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ruleset.NewDirStore: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ruleset.NewDirStore: %s is not a directory", dir)
	}
	return &FSStore{fsys: os.DirFS(dir), active: active}, nil
}

// NewFSStore returns a store over fsys.
func NewFSStore(fsys fs.FS, active string) *FSStore {
	return &FSStore{fsys: fsys, active: active}
}

func (s *FSStore) Get(_ context.Context, version string) (*domain.RuleSetRecord, error) {
	if !versionRe.MatchString(version) {
		return nil, fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
	}
	raw, err := fs.ReadFile(s.fsys, version+definitionExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", domain.ErrRuleSetNotFound, version)
		}
		return nil, fmt.Errorf("fsStore.Get: %w", err)
	}
	codes, err := fs.ReadFile(s.fsys, version+codesExt)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fsStore.Get: %w", err)
	}
	if len(codes) > 0 {
		if raw, err = mergeRaw(raw, codes); err != nil {
			return nil, err
		}
	}
	rec := &domain.RuleSetRecord{Version: version, Definition: raw, IsActive: version == s.activeVersion()}
	if info, err := fs.Stat(s.fsys, version+definitionExt); err == nil {
		rec.CreatedAt = info.ModTime().UTC()
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec, nil
}

func (s *FSStore) Active(ctx context.Context) (*domain.RuleSetRecord, error) {
	version := s.activeVersion()
	if version == "" {
		versions, err := s.versions()
		if err != nil {
			return nil, err
		}
		if len(versions) != 1 {
			return nil, fmt.Errorf("%w: no active rule set configured and %d available", domain.ErrRuleSetNotFound, len(versions))
		}
		version = versions[0]
	}
	rec, err := s.Get(ctx, version)
	if err != nil {
		return nil, err
	}
	rec.IsActive = true
	return rec, nil
}

func (s *FSStore) List(ctx context.Context) ([]domain.RuleSetRecord, error) {
	versions, err := s.versions()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RuleSetRecord, 0, len(versions))
	for _, v := range versions {
		rec, err := s.Get(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *FSStore) activeVersion() string { return s.active }

func (s *FSStore) versions() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("fsStore.versions: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, codesExt) || path.Ext(name) != definitionExt {
			continue
		}
		if v := strings.TrimSuffix(name, definitionExt); versionRe.MatchString(v) {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

// mergeRaw folds a code-list fragment into a raw definition.
func mergeRaw(raw, codes []byte) ([]byte, error) {
	def, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	frag, err := ParseFragment(codes)
	if err != nil {
		return nil, err
	}
	def.Merge(frag)
	out, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRuleSet, err)
	}
	return out, nil
}

package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/app"
	"invoicecheck/internal/config"
	"invoicecheck/internal/domain"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/ruleset"
)

func TestOpenStore_Embedded(t *testing.T) {
	cfg := &config.Config{RuleSet: config.RuleSetConfig{Source: config.SourceEmbedded, CacheSize: 4}}

	st, err := app.OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()
	assert.Nil(t, st.DB)
	assert.Nil(t, st.Repo)

	rs, err := app.NewProvider(&cfg.RuleSet, st).Preload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ruleset.DefaultVersion, rs.Version)
}

func TestOpenStore_Dir(t *testing.T) {
	dir := t.TempDir()
	def := `
version: tiny-1
namespaces: {inv: "urn:test"}
schema:
  root: {name: inv:Invoice}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny-1.yaml"), []byte(def), 0o600))

	cfg := &config.Config{RuleSet: config.RuleSetConfig{Source: config.SourceDir, Dir: dir, Active: "tiny-1"}}
	st, err := app.OpenStore(cfg)
	require.NoError(t, err)

	rec, err := st.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tiny-1", rec.Version)
}

func TestOpenStore_Errors(t *testing.T) {
	_, err := app.OpenStore(&config.Config{RuleSet: config.RuleSetConfig{Source: config.SourceDir, Dir: "/does/not/exist"}})
	assert.Error(t, err)

	_, err = app.OpenStore(&config.Config{RuleSet: config.RuleSetConfig{Source: "ftp"}})
	assert.ErrorContains(t, err, "unknown rule-set source")
}

func TestEngineOptions(t *testing.T) {
	cfg := &config.EngineConfig{MaxDocumentBytes: 64, MaxDepth: 8, Timeout: time.Second, RuleParallelism: 2}
	provider := ruleset.NewProvider(ruleset.NewEmbeddedStore())
	v := engine.New(provider, app.EngineOptions(cfg, zerolog.Nop(), nil)...)

	rep := v.ValidateBytes(context.Background(), make([]byte, 128), "", "")

	require.Len(t, rep.Findings, 1)
	assert.Equal(t, "ENGINE-SIZE-LIMIT", rep.Findings[0].RuleID)
	assert.Equal(t, domain.VerdictInvalid, rep.Verdict)
}

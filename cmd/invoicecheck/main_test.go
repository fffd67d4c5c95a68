package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/report"
)

const validFixture = "../../internal/engine/testdata/invoices/valid.xml"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "usage:")

	code, _, _ = runCLI(t, "frobnicate")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, "validate")
	assert.Equal(t, exitUsage, code)
}

func TestRun_ValidateEmbedded(t *testing.T) {
	t.Setenv("INVOICECHECK_RULESET_SOURCE", "embedded")

	code, stdout, _ := runCLI(t, "validate", validFixture)
	require.Equal(t, exitOK, code)
	rep, err := report.Decode(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.True(t, rep.Valid())

	broken := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte("<Invoice><cbc:ID>"), 0o644))
	code, stdout, _ = runCLI(t, "validate", validFixture, broken)
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, stdout, "PARSE-ERROR")

	code, _, _ = runCLI(t, "validate", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Equal(t, exitError, code)
}

func TestRun_RuleSets(t *testing.T) {
	t.Setenv("INVOICECHECK_RULESET_SOURCE", "embedded")

	code, stdout, _ := runCLI(t, "rulesets")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "* ubl-invoice-2.1\n", stdout)
}

func TestRun_PublishReadOnlySource(t *testing.T) {
	t.Setenv("INVOICECHECK_RULESET_SOURCE", "embedded")

	def := filepath.Join(t.TempDir(), "def.yaml")
	require.NoError(t, os.WriteFile(def, []byte("version: x\nschema: {root: {name: a}}\n"), 0o644))
	code, _, stderr := runCLI(t, "publish", def)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "read-only")

	require.NoError(t, os.WriteFile(def, []byte("version: ["), 0o644))
	code, _, stderr = runCLI(t, "publish", def)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "does not compile")
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invoicecheck/internal/ruleset"
)

func writeWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := make([]interface{}, len(row))
			for j, v := range row {
				r[j] = v
			}
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	path := filepath.Join(t.TempDir(), "codes.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRun(t *testing.T) {
	in := writeWorkbook(t, map[string][][]string{
		"currency": {{"Code"}, {"EUR"}, {" USD "}, {""}, {"EUR"}},
		"table.currency_by_country": {
			{"Country", "Currencies"},
			{"DE", "EUR"},
			{"CH", "CHF", "EUR"},
			{"", "XXX"},
		},
		"empty": {{"Code"}},
	})
	out := filepath.Join(t.TempDir(), "ubl.codes.yaml")

	require.NoError(t, run(in, out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	frag, err := ruleset.ParseFragment(raw)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"currency": {"EUR", "USD"}}, frag.CodeLists)
	assert.Equal(t, map[string]map[string][]string{
		"currency_by_country": {"DE": {"EUR"}, "CH": {"CHF", "EUR"}},
	}, frag.Tables)
}

func TestRun_EmptyWorkbook(t *testing.T) {
	in := writeWorkbook(t, map[string][][]string{"currency": {{"Code"}}})
	assert.Error(t, run(in, filepath.Join(t.TempDir(), "out.yaml")))
	assert.Error(t, run(filepath.Join(t.TempDir(), "missing.xlsx"), ""))
}

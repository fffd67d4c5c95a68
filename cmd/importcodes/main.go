// Command importcodes converts a code-list workbook into a rule-set
// fragment (<version>.codes.yaml) that the dir and s3 stores merge into
// the definition of the same version.
//
// Every sheet is one code list named after the sheet, with codes in column
// A. Sheets named "table.<name>" become lookup tables: column A is the key
// and the remaining columns are the allowed values. The first row of each
// sheet is a header and is skipped.
//
// Usage: go run ./cmd/importcodes -in codes.xlsx -out rulesets/ubl-invoice-2.1.codes.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"invoicecheck/internal/ruleset"
)

const tablePrefix = "table."

func main() {
	in := flag.String("in", "codes.xlsx", "workbook to read")
	out := flag.String("out", "", "fragment file to write (default: stdout)")
	flag.Parse()

	if err := run(*in, *out); err != nil {
		log.Fatal(err)
	}
}

func run(in, out string) error {
	f, err := excelize.OpenFile(in)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	frag, err := readWorkbook(f)
	if err != nil {
		return err
	}

	w := os.Stdout
	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = file.Close() }()
		w = file
	}
	if err := frag.Marshal(w); err != nil {
		return err
	}

	log.Printf("Imported %d code lists and %d tables from %s", len(frag.CodeLists), len(frag.Tables), in)
	return nil
}

func readWorkbook(f *excelize.File) (*ruleset.Fragment, error) {
	frag := &ruleset.Fragment{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) > 0 {
			rows = rows[1:]
		}

		if name, ok := strings.CutPrefix(sheet, tablePrefix); ok {
			table := parseTable(rows)
			if len(table) == 0 {
				continue
			}
			if frag.Tables == nil {
				frag.Tables = make(map[string]map[string][]string)
			}
			frag.Tables[strings.TrimSpace(name)] = table
			continue
		}

		codes := uniqueCells(rows, 0)
		if len(codes) == 0 {
			continue
		}
		if frag.CodeLists == nil {
			frag.CodeLists = make(map[string][]string)
		}
		frag.CodeLists[strings.TrimSpace(sheet)] = codes
	}
	if len(frag.CodeLists) == 0 && len(frag.Tables) == 0 {
		return nil, fmt.Errorf("workbook holds no codes")
	}
	return frag, nil
}

// uniqueCells returns the non-empty values of column col in first-seen order.
func uniqueCells(rows [][]string, col int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(cellVal(row, col))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func parseTable(rows [][]string) map[string][]string {
	table := make(map[string][]string)
	for _, row := range rows {
		key := strings.TrimSpace(cellVal(row, 0))
		if key == "" {
			continue
		}
		for _, cell := range row[1:] {
			v := strings.TrimSpace(cell)
			if v != "" && !contains(table[key], v) {
				table[key] = append(table[key], v)
			}
		}
	}
	return table
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cellVal(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/document"
	"invoicecheck/internal/domain"
)

var ublPrefixes = map[string]string{
	"inv": nsInvoice,
	"cbc": nsCBC,
	"cac": nsCAC,
}

func TestCompilePath_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: "  "},
		{name: "empty_step", expr: "cac:InvoiceLine//cbc:ID"},
		{name: "unknown_prefix", expr: "foo:Bar"},
		{name: "attribute_not_last", expr: "@currencyID/cbc:ID"},
		{name: "absolute_root_only_slash", expr: "/"},
		{name: "dot_in_middle", expr: "cac:InvoiceLine/./cbc:ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := document.CompilePath(tt.expr, ublPrefixes)
			assert.ErrorIs(t, err, domain.ErrInvalidPath)
		})
	}
}

func TestPath_Select(t *testing.T) {
	doc := parse(t, sampleInvoice)

	t.Run("relative", func(t *testing.T) {
		p := document.MustCompilePath("cac:InvoiceLine/cbc:ID", ublPrefixes)
		vals := p.Values(doc.Root)
		require.Len(t, vals, 2)
		assert.Equal(t, "1", vals[0].Text)
		assert.Equal(t, "2", vals[1].Text)
		assert.Equal(t, "/Invoice/cac:InvoiceLine[2]/cbc:ID", vals[1].Path)
	})

	t.Run("absolute_from_any_node", func(t *testing.T) {
		p := document.MustCompilePath("/inv:Invoice/cbc:ID", ublPrefixes)
		deep := doc.Root.Children[1].Children[0]
		v, ok := p.First(deep)
		require.True(t, ok)
		assert.Equal(t, "INV-1", v.Text)
	})

	t.Run("absolute_wrong_root", func(t *testing.T) {
		p := document.MustCompilePath("/cbc:Invoice", ublPrefixes)
		assert.Empty(t, p.Select(doc.Root))
	})

	t.Run("attribute", func(t *testing.T) {
		p := document.MustCompilePath("cac:InvoiceLine/cbc:LineExtensionAmount/@currencyID", ublPrefixes)
		assert.True(t, p.IsAttribute())
		vals := p.Values(doc.Root)
		require.Len(t, vals, 2)
		assert.Equal(t, "EUR", vals[0].Text)
		assert.Equal(t, "/Invoice/cac:InvoiceLine[1]/cbc:LineExtensionAmount/@currencyID", vals[0].Path)
		assert.Equal(t, 8, vals[0].Loc.Line)
	})

	t.Run("dot", func(t *testing.T) {
		p := document.MustCompilePath(".", ublPrefixes)
		nodes := p.Select(doc.Root)
		require.Len(t, nodes, 1)
		assert.Same(t, doc.Root, nodes[0])
	})

	t.Run("default_namespace", func(t *testing.T) {
		p := document.MustCompilePath("/Invoice", map[string]string{"": nsInvoice})
		assert.Len(t, p.Select(doc.Root), 1)
	})

	t.Run("missing", func(t *testing.T) {
		p := document.MustCompilePath("cbc:PayableAmount", ublPrefixes)
		_, ok := p.First(doc.Root)
		assert.False(t, ok)
		assert.Empty(t, p.Values(doc.Root))
	})
}

package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"invoicecheck/internal/domain"
)

// Namespace is the XML namespace of rendered reports.
const Namespace = "urn:invoicecheck:report:1"

// ContentType is the media type of a rendered report.
const ContentType = "application/xml; charset=utf-8"

// Render writes the report as an indented XML document.
func (r *Report) Render(w io.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("validationReport")
	root.CreateAttr("xmlns", Namespace)
	root.CreateAttr("verdict", string(r.Verdict))

	meta := root.CreateElement("metadata")
	meta.CreateElement("engineVersion").SetText(r.Metadata.EngineVersion)
	meta.CreateElement("ruleSetVersion").SetText(r.Metadata.RuleSetVersion)
	meta.CreateElement("ruleSetDigest").SetText(r.Metadata.RuleSetDigest)
	meta.CreateElement("runId").SetText(r.Metadata.RunID)
	if !r.Metadata.Timestamp.IsZero() {
		meta.CreateElement("timestamp").SetText(r.Metadata.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	meta.CreateElement("documentSize").SetText(strconv.Itoa(r.Metadata.DocumentSize))
	meta.CreateElement("encoding").SetText(r.Metadata.Encoding)

	counts := r.Counts()
	summary := root.CreateElement("summary")
	summary.CreateAttr("errors", strconv.Itoa(counts[domain.SeverityError]))
	summary.CreateAttr("warnings", strconv.Itoa(counts[domain.SeverityWarning]))
	summary.CreateAttr("infos", strconv.Itoa(counts[domain.SeverityInfo]))

	list := root.CreateElement("findings")
	list.CreateAttr("count", strconv.Itoa(len(r.Findings)))
	for _, f := range r.Findings {
		el := list.CreateElement("finding")
		el.CreateAttr("ruleId", f.RuleID)
		el.CreateAttr("severity", string(f.Severity))
		el.CreateAttr("stage", string(f.Stage))
		if !f.Location.IsZero() {
			el.CreateAttr("line", strconv.Itoa(f.Location.Line))
			el.CreateAttr("column", strconv.Itoa(f.Location.Column))
			el.CreateAttr("offset", strconv.Itoa(f.Location.Offset))
		}
		el.CreateElement("message").SetText(f.Message)
		if f.Path != "" {
			el.CreateElement("path").SetText(f.Path)
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("report.Render: %w", err)
	}
	return nil
}

// Bytes renders the report into memory.
func (r *Report) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a report produced by Render.
func Decode(rd io.Reader) (*Report, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(rd); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedReport, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "validationReport" {
		return nil, fmt.Errorf("%w: missing validationReport element", domain.ErrMalformedReport)
	}

	r := &Report{}
	switch v := domain.Verdict(root.SelectAttrValue("verdict", "")); v {
	case domain.VerdictValid, domain.VerdictInvalid:
		r.Verdict = v
	default:
		return nil, fmt.Errorf("%w: verdict %q", domain.ErrMalformedReport, v)
	}

	if meta := root.SelectElement("metadata"); meta != nil {
		r.Metadata.EngineVersion = childText(meta, "engineVersion")
		r.Metadata.RuleSetVersion = childText(meta, "ruleSetVersion")
		r.Metadata.RuleSetDigest = childText(meta, "ruleSetDigest")
		r.Metadata.RunID = childText(meta, "runId")
		r.Metadata.Encoding = childText(meta, "encoding")
		if ts := childText(meta, "timestamp"); ts != "" {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("%w: timestamp: %v", domain.ErrMalformedReport, err)
			}
			r.Metadata.Timestamp = t
		}
		if size := childText(meta, "documentSize"); size != "" {
			n, err := strconv.Atoi(size)
			if err != nil {
				return nil, fmt.Errorf("%w: documentSize: %v", domain.ErrMalformedReport, err)
			}
			r.Metadata.DocumentSize = n
		}
	}

	if list := root.SelectElement("findings"); list != nil {
		for _, el := range list.SelectElements("finding") {
			f, err := decodeFinding(el)
			if err != nil {
				return nil, err
			}
			r.Findings = append(r.Findings, f)
		}
	}
	return r, nil
}

func decodeFinding(el *etree.Element) (domain.Finding, error) {
	sev, err := domain.ParseSeverity(el.SelectAttrValue("severity", ""))
	if err != nil {
		return domain.Finding{}, fmt.Errorf("%w: %v", domain.ErrMalformedReport, err)
	}
	f := domain.Finding{
		RuleID:   el.SelectAttrValue("ruleId", ""),
		Severity: sev,
		Stage:    domain.Stage(el.SelectAttrValue("stage", "")),
		Message:  childText(el, "message"),
		Path:     childText(el, "path"),
	}
	for _, attr := range []struct {
		name string
		dst  *int
	}{
		{"line", &f.Location.Line},
		{"column", &f.Location.Column},
		{"offset", &f.Location.Offset},
	} {
		v := el.SelectAttrValue(attr.name, "")
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Finding{}, fmt.Errorf("%w: finding %s: %s: %v", domain.ErrMalformedReport, f.RuleID, attr.name, err)
		}
		*attr.dst = n
	}
	return f, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}

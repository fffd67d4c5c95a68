package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/report"
	"invoicecheck/internal/ruleset"
)

func TestFeatures(t *testing.T) {
	provider := ruleset.NewProvider(ruleset.NewEmbeddedStore())

	suite := godog.TestSuite{
		Name: "validation",
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			initializeScenario(ctx, provider)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("testdata", "features")},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}

// scenarioState holds per-scenario state for step definitions.
type scenarioState struct {
	provider *ruleset.Provider
	doc      string
	ruleSet  string
	opts     []engine.Option
	result   *report.Report
}

func (s *scenarioState) finding(n int) (domain.Finding, error) {
	if s.result == nil {
		return domain.Finding{}, fmt.Errorf("no report yet")
	}
	if n < 1 || n > len(s.result.Findings) {
		return domain.Finding{}, fmt.Errorf("finding %d requested, report has %d: %v", n, len(s.result.Findings), s.result.Findings)
	}
	return s.result.Findings[n-1], nil
}

func initializeScenario(ctx *godog.ScenarioContext, provider *ruleset.Provider) {
	s := &scenarioState{provider: provider}

	ctx.Step(`^the default rule set$`, func() error {
		s.ruleSet = ""
		return nil
	})
	ctx.Step(`^the rule set "([^"]*)"$`, func(version string) error {
		s.ruleSet = version
		return nil
	})
	ctx.Step(`^the invoice "([^"]*)"$`, func(name string) error {
		data, err := os.ReadFile(filepath.Join("testdata", "invoices", name))
		if err != nil {
			return err
		}
		s.doc = string(data)
		return nil
	})
	ctx.Step(`^the element "([^"]*)" is removed$`, func(name string) error {
		re := regexp.MustCompile(`\s*<` + regexp.QuoteMeta(name) + `[^>]*>[^<]*</` + regexp.QuoteMeta(name) + `>`)
		if !re.MatchString(s.doc) {
			return fmt.Errorf("element %s not found", name)
		}
		s.doc = re.ReplaceAllString(s.doc, "")
		return nil
	})
	ctx.Step(`^"([^"]*)" is replaced by "([^"]*)"$`, func(old, repl string) error {
		if !strings.Contains(s.doc, old) {
			return fmt.Errorf("%q not found in document", old)
		}
		s.doc = strings.Replace(s.doc, old, repl, 1)
		return nil
	})
	ctx.Step(`^documents are limited to (\d+) bytes$`, func(n int) error {
		s.opts = append(s.opts, engine.WithMaxDocumentBytes(int64(n)))
		return nil
	})

	ctx.Step(`^the invoice is validated$`, func() error {
		v := engine.New(s.provider, s.opts...)
		s.result = v.ValidateBytes(context.Background(), []byte(s.doc), "application/xml", s.ruleSet)
		return nil
	})

	ctx.Step(`^the verdict is (VALID|INVALID)$`, func(verdict string) error {
		if got := string(s.result.Verdict); got != verdict {
			return fmt.Errorf("verdict %s, want %s (findings: %v)", got, verdict, s.result.Findings)
		}
		return nil
	})
	ctx.Step(`^there are no findings$`, func() error {
		if len(s.result.Findings) != 0 {
			return fmt.Errorf("expected no findings, got %v", s.result.Findings)
		}
		return nil
	})
	ctx.Step(`^there is exactly (\d+) findings?$`, func(n int) error {
		if len(s.result.Findings) != n {
			return fmt.Errorf("expected %d findings, got %d: %v", n, len(s.result.Findings), s.result.Findings)
		}
		return nil
	})
	ctx.Step(`^finding (\d+) has rule "([^"]*)" at stage "([^"]*)"$`, func(n int, ruleID, stage string) error {
		f, err := s.finding(n)
		if err != nil {
			return err
		}
		if f.RuleID != ruleID || string(f.Stage) != stage {
			return fmt.Errorf("finding %d is %s/%s, want %s/%s", n, f.RuleID, f.Stage, ruleID, stage)
		}
		return nil
	})
	ctx.Step(`^finding (\d+) mentions "([^"]*)"$`, func(n int, text string) error {
		f, err := s.finding(n)
		if err != nil {
			return err
		}
		if !strings.Contains(f.Message, text) {
			return fmt.Errorf("message %q does not mention %q", f.Message, text)
		}
		return nil
	})
	ctx.Step(`^finding (\d+) has a line number$`, func(n int) error {
		f, err := s.finding(n)
		if err != nil {
			return err
		}
		if f.Location.Line < 1 {
			return fmt.Errorf("finding %d has no line", n)
		}
		return nil
	})
	ctx.Step(`^the rendered report decodes to the same findings$`, func() error {
		data, err := s.result.Bytes()
		if err != nil {
			return err
		}
		decoded, err := report.Decode(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if fmt.Sprint(decoded.Findings) != fmt.Sprint(s.result.Findings) || decoded.Verdict != s.result.Verdict {
			return fmt.Errorf("decoded report differs:\n%v\n%v", decoded.Findings, s.result.Findings)
		}
		return nil
	})
}

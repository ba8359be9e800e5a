package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/gemini"
	"example.com/detective_engine/pkg/metrics"
)

// ErrEmptyInput is returned for blank narratives. No request is made.
var ErrEmptyInput = errors.New("audit: narrative is empty")

// Completer is the model call the analyzer depends on.
type Completer interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error)
}

// Config holds analyzer settings
type Config struct {
	Model         string
	SystemPrompt  string
	Search        bool // attach web search grounding
	EnforceSewage bool // apply EnforceSewagePrinciple to every report
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Analyzer turns narratives into validated reports.
type Analyzer struct {
	completer Completer
	config    Config
	logger    *slog.Logger
}

// NewAnalyzer creates an analyzer over completer.
func NewAnalyzer(completer Completer, config Config) *Analyzer {
	if config.Model == "" {
		config.Model = "gemini-3-pro-preview"
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Analyzer{
		completer: completer,
		config:    config,
		logger:    config.Logger.With(slog.String("component", "audit")),
	}
}

// Analyze audits text. Failures are never retried or defaulted: transport
// problems surface as *apperr.TransportError and unusable output as
// *apperr.FormatError.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*Report, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	report, err := a.analyze(ctx, text)
	elapsed := time.Since(start)

	if err != nil {
		kind := apperr.Kind(err)
		a.config.Metrics.RecordAnalysis(kind, elapsed)
		a.logger.Error("Analysis failed",
			slog.String("kind", kind),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	a.config.Metrics.RecordAnalysis("ok", elapsed)
	a.logger.Info("Analysis complete",
		slog.String("verdict", string(report.Verdict)),
		slog.Int("score", report.Score),
		slog.Int("claims", len(report.Fact.Claims)),
		slog.Int("sources", len(report.GroundingSources)),
		slog.Duration("elapsed", elapsed),
	)
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, text string) (*Report, error) {
	resp, err := a.completer.Generate(ctx, gemini.GenerateRequest{
		Model:             a.config.Model,
		SystemInstruction: a.config.SystemPrompt,
		Contents:          []gemini.Message{{Role: gemini.RoleUser, Text: text}},
		JSON:              true,
		Search:            a.config.Search,
	})
	if err != nil {
		return nil, err
	}

	report, err := ParseReport(resp.Text)
	if err != nil {
		return nil, err
	}
	report.GroundingSources = resp.Sources

	if a.config.EnforceSewage && report.EnforceSewagePrinciple() {
		a.logger.Info("Report adjusted for fabricated content", slog.String("verdict", string(report.Verdict)))
	}
	return report, nil
}

// ParseReport decodes and validates model output. Markdown code fences
// around the JSON are tolerated because grounded responses may carry them.
func ParseReport(raw string) (*Report, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, &apperr.FormatError{Raw: raw, Err: errors.New("empty response")}
	}

	var report Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, &apperr.FormatError{Raw: raw, Err: fmt.Errorf("decode report: %w", err)}
	}
	if err := errors.Join(checkPresence([]byte(body)), report.Validate()); err != nil {
		return nil, &apperr.FormatError{Raw: raw, Err: err}
	}
	return &report, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

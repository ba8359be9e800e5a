package audit

import (
	"encoding/json"
	"errors"
	"fmt"

	"example.com/detective_engine/pkg/gemini"
)

// Verdict is the overall classification of a narrative.
type Verdict string

const (
	VerdictAuthentic  Verdict = "AUTHENTIC"
	VerdictFraudulent Verdict = "FRAUDULENT"
	VerdictSuspicious Verdict = "SUSPICIOUS"
)

// LensStatus is the outcome of one lens.
type LensStatus string

const (
	LensPass     LensStatus = "PASS"
	LensBreached LensStatus = "BREACHED"
)

// EntityStatus classifies a cited source.
type EntityStatus string

const (
	EntityVerified   EntityStatus = "Verified"
	EntityAnonymous  EntityStatus = "Anonymous"
	EntityFabricated EntityStatus = "Fabricated"
)

// ClaimVerdict classifies one atomic claim.
type ClaimVerdict string

const (
	ClaimVerified    ClaimVerdict = "verified"
	ClaimRefuted     ClaimVerdict = "refuted"
	ClaimUnconfirmed ClaimVerdict = "unconfirmed"
)

type SourceEntity struct {
	Name   string       `json:"name"`
	Status EntityStatus `json:"status"`
	Reason string       `json:"reason"`
	URL    string       `json:"url,omitempty"`
}

type TrailLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type AtomicClaim struct {
	Text     string       `json:"text"`
	Verdict  ClaimVerdict `json:"verdict"`
	Evidence string       `json:"evidence"`
	Trail    []TrailLink  `json:"trail"`
}

type LogicFallacy struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
}

// SourceLens audits who is speaking.
type SourceLens struct {
	Status        LensStatus     `json:"status"`
	OverallRating string         `json:"overallRating"`
	Entities      []SourceEntity `json:"entities"`
}

// FactLens audits what is claimed.
type FactLens struct {
	Status LensStatus    `json:"status"`
	Claims []AtomicClaim `json:"claims"`
}

// LogicLens audits how the argument is built.
type LogicLens struct {
	Status          LensStatus     `json:"status"`
	Fallacies       []LogicFallacy `json:"fallacies"`
	EmotionalTone   string         `json:"emotionalTone"`
	ReasoningRating string         `json:"reasoningRating"`
}

// Report is the structured audit returned by the model.
type Report struct {
	Summary          string          `json:"summary"`
	Verdict          Verdict         `json:"verdict"`
	Score            int             `json:"score"`
	GroundingSources []gemini.Source `json:"groundingSources,omitempty"`
	Source           SourceLens      `json:"lensA_Source"`
	Fact             FactLens        `json:"lensB_Fact"`
	Logic            LogicLens       `json:"lensC_Logic"`
}

// Validate checks every enumerated field and the score range.
func (r *Report) Validate() error {
	var errs []error

	switch r.Verdict {
	case VerdictAuthentic, VerdictFraudulent, VerdictSuspicious:
	default:
		errs = append(errs, fmt.Errorf("verdict must be AUTHENTIC, FRAUDULENT or SUSPICIOUS, got %q", r.Verdict))
	}

	if r.Score < 0 || r.Score > 100 {
		errs = append(errs, fmt.Errorf("score must be between 0 and 100, got %d", r.Score))
	}

	if err := validLens("lensA_Source", r.Source.Status); err != nil {
		errs = append(errs, err)
	}
	if err := validLens("lensB_Fact", r.Fact.Status); err != nil {
		errs = append(errs, err)
	}
	if err := validLens("lensC_Logic", r.Logic.Status); err != nil {
		errs = append(errs, err)
	}

	for i, e := range r.Source.Entities {
		switch e.Status {
		case EntityVerified, EntityAnonymous, EntityFabricated:
		default:
			errs = append(errs, fmt.Errorf("entity %d (%s): unknown status %q", i, e.Name, e.Status))
		}
	}

	for i, c := range r.Fact.Claims {
		switch c.Verdict {
		case ClaimVerified, ClaimRefuted, ClaimUnconfirmed:
		default:
			errs = append(errs, fmt.Errorf("claim %d: unknown verdict %q", i, c.Verdict))
		}
	}

	return errors.Join(errs...)
}

// Keys every report object must carry. A missing or null key is an error
// rather than a zero value.
var (
	reportKeys  = []string{"summary", "verdict", "score", "lensA_Source", "lensB_Fact", "lensC_Logic"}
	sourceKeys  = []string{"status", "overallRating", "entities"}
	factKeys    = []string{"status", "claims"}
	logicKeys   = []string{"status", "fallacies", "emotionalTone", "reasoningRating"}
	entityKeys  = []string{"name", "status", "reason"}
	claimKeys   = []string{"text", "verdict", "evidence", "trail"}
	trailKeys   = []string{"title", "url"}
	fallacyKeys = []string{"name", "explanation"}
)

type object map[string]json.RawMessage

// checkPresence reports every required key absent from the raw report.
func checkPresence(body []byte) error {
	var top object
	if err := json.Unmarshal(body, &top); err != nil {
		return fmt.Errorf("report must be a JSON object: %w", err)
	}

	errs := missing("report", top, reportKeys)

	if lens, ok := child(top, "lensA_Source"); ok {
		errs = append(errs, missing("lensA_Source", lens, sourceKeys)...)
		for i, e := range children(lens, "entities") {
			errs = append(errs, missing(fmt.Sprintf("lensA_Source.entities[%d]", i), e, entityKeys)...)
		}
	}
	if lens, ok := child(top, "lensB_Fact"); ok {
		errs = append(errs, missing("lensB_Fact", lens, factKeys)...)
		for i, c := range children(lens, "claims") {
			path := fmt.Sprintf("lensB_Fact.claims[%d]", i)
			errs = append(errs, missing(path, c, claimKeys)...)
			for j, t := range children(c, "trail") {
				errs = append(errs, missing(fmt.Sprintf("%s.trail[%d]", path, j), t, trailKeys)...)
			}
		}
	}
	if lens, ok := child(top, "lensC_Logic"); ok {
		errs = append(errs, missing("lensC_Logic", lens, logicKeys)...)
		for i, f := range children(lens, "fallacies") {
			errs = append(errs, missing(fmt.Sprintf("lensC_Logic.fallacies[%d]", i), f, fallacyKeys)...)
		}
	}
	return errors.Join(errs...)
}

func missing(path string, obj object, keys []string) []error {
	var errs []error
	for _, k := range keys {
		if v, ok := obj[k]; !ok || string(v) == "null" {
			errs = append(errs, fmt.Errorf("%s.%s is required", path, k))
		}
	}
	return errs
}

// child decodes obj[key] as an object. Type mismatches are left to the
// typed decode.
func child(obj object, key string) (object, bool) {
	var out object
	if err := json.Unmarshal(obj[key], &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func children(obj object, key string) []object {
	var out []object
	if err := json.Unmarshal(obj[key], &out); err != nil {
		return nil
	}
	return out
}

func validLens(name string, s LensStatus) error {
	if s != LensPass && s != LensBreached {
		return fmt.Errorf("%s status must be PASS or BREACHED, got %q", name, s)
	}
	return nil
}

// EnforceSewagePrinciple applies the rule that one fabrication spoils the
// whole narrative: a fabricated entity breaches the source lens, a refuted
// claim breaches the fact lens, and either forces a FRAUDULENT verdict.
// It reports whether the report changed.
func (r *Report) EnforceSewagePrinciple() bool {
	changed := false
	fabricated := false

	for _, e := range r.Source.Entities {
		if e.Status == EntityFabricated {
			fabricated = true
			if r.Source.Status != LensBreached {
				r.Source.Status = LensBreached
				changed = true
			}
			break
		}
	}

	for _, c := range r.Fact.Claims {
		if c.Verdict == ClaimRefuted {
			fabricated = true
			if r.Fact.Status != LensBreached {
				r.Fact.Status = LensBreached
				changed = true
			}
			break
		}
	}

	if fabricated && r.Verdict != VerdictFraudulent {
		r.Verdict = VerdictFraudulent
		changed = true
	}
	return changed
}

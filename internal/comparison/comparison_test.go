package comparison

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const scenarioJSON = `{
	"meta": {"title": "A vs B", "author": "X", "created": "2025-01-01", "description": "d"},
	"eips": [1, 2],
	"sections": [
		{"type": "author-preference", "preferredEip": 1, "strength": "strong", "reasoning": "r"}
	]
}`

func everySection() *Comparison {
	return &Comparison{
		Meta: Meta{Title: "EIP-7702 vs EIP-3074", Author: "Jane Doe (@jane)", Created: "2025-01-01", Description: "Account abstraction paths"},
		EIPs: []int{7702, 3074},
		Sections: []Section{
			&AuthorPreferenceSection{PreferredEIP: 7702, Strength: StrengthStrong, Reasoning: "Forward compatible"},
			&HeaderSection{Title: "Overview", Level: 1, Subtitle: "Why it matters"},
			&ComparisonTableSection{Title: "Basics", Rows: []TableRow{{Label: "Opcode", Values: ByEIP[string]{"3074": "AUTH, AUTHCALL"}}}},
			&VisualSection{Title: "Flow", VisualType: "diagram", Src: "https://example.org/flow.png", Alt: "flow", Caption: "Delegation flow"},
			&CalloutSection{Variant: CalloutWarning, Title: "Heads up", Content: "Replay **risk**"},
			&SummarySection{Title: "TL;DR", Points: []string{"one", "two"}},
			&TextSection{Title: "Details", Content: "Plain *markdown*"},
			&ArgumentSection{Title: "Case for", EIP: 7702, Stance: "for", Claim: "Simpler", Evidence: []string{"fewer opcodes"}},
			&DebateSection{Title: "Debate", Topic: "Migration", Positions: ByEIP[[]string]{"7702": {"smooth"}, "3074": {"needs invokers"}}},
			&TimelineSection{Events: []TimelineEvent{{Date: "2024-05", Label: "Proposed", Description: "first draft"}}},
			&QuickStatsSection{Stats: ByEIP[[]Stat]{"7702": {{Label: "Opcodes", Value: "0"}}}},
			&NorthStarComparisonSection{NorthStars: []string{"improveUX"}, Alignment: ByEIP[map[string]NorthStarAlignment]{"7702": {"improveUX": {Impact: "high", Description: "batching"}}}},
			&StakeholderImpactsSection{Stakeholders: []string{"wallets"}, Impacts: ByEIP[map[string]string]{"3074": {"wallets": "invoker audits"}}},
			&BenefitsTradeoffsSection{Data: ByEIP[BenefitsTradeoffs]{"7702": {Benefits: []string{"batching"}, Tradeoffs: []string{"new tx type"}}}},
			&ForkContextSection{Fork: "Pectra", Description: "May 2025", EIPStatus: ByEIP[string]{"7702": "Included"}},
			&TradeoffMatrixSection{Dimensions: []string{"security"}, Scores: []TradeoffScore{{Dimension: "security", EIP: 7702, Score: 7.5, Note: "ok"}}},
			&RiskAnalysisSection{Risks: []Risk{{EIP: 3074, Title: "Invoker bugs", Severity: 80, Mitigation: "audits"}}},
			&DecisionMatrixSection{Criteria: []Criterion{{Name: "ux", Weight: 2}}, Scores: ByEIP[map[string]float64]{"7702": {"ux": 8}}},
			&TimelineComparisonSection{Phases: []string{"devnet"}, Timelines: ByEIP[map[string]string]{"7702": {"devnet": "Q1"}}},
			&ComplexityRadarSection{Dimensions: []string{"client"}, Values: ByEIP[map[string]float64]{"3074": {"client": 4}}},
			&ForkcastFactsSection{Source: ForkcastSource, EIPID: 7702, Data: FactsData{Title: "Set EOA account code", Benefits: []string{"batching"}}},
		},
	}
}

func TestParseScenario(t *testing.T) {
	c, err := Parse([]byte(scenarioJSON))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Meta.Title != "A vs B" {
		t.Errorf("title = %q", c.Meta.Title)
	}
	if diff := cmp.Diff([]int{1, 2}, c.EIPs); diff != "" {
		t.Errorf("eips mismatch (-want +got):\n%s", diff)
	}
	pref, ok := c.Sections[0].(*AuthorPreferenceSection)
	if !ok {
		t.Fatalf("section 0 is %T", c.Sections[0])
	}
	if pref.PreferredEIP != 1 || pref.Strength != StrengthStrong || pref.Reasoning != "r" {
		t.Errorf("unexpected preference %+v", pref)
	}
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"not json", `{"meta":`, "Invalid JSON"},
		{"array", `[1,2]`, "Invalid JSON"},
		{"missing meta", `{"eips":[1,2],"sections":[]}`, `"meta"`},
		{"missing eips", `{"meta":{},"sections":[]}`, `"eips"`},
		{"missing sections", `{"meta":{},"eips":[1,2]}`, `"sections"`},
		{"meta not object", `{"meta":"x","eips":[1],"sections":[]}`, `"meta" must be an object`},
		{"empty eips", `{"meta":{},"eips":[],"sections":[]}`, "at least one EIP"},
		{"fractional eip", `{"meta":{},"eips":[1.5],"sections":[]}`, "array of integers"},
		{"duplicate eip", `{"meta":{},"eips":[1,1],"sections":[]}`, "more than once"},
		{"sections not array", `{"meta":{},"eips":[1],"sections":{}}`, "must be an array"},
		{"section without type", `{"meta":{},"eips":[1],"sections":[{"title":"x"}]}`, `"type"`},
		{"header without title", `{"meta":{},"eips":[1],"sections":[{"type":"header"}]}`, `"title"`},
		{"header level", `{"meta":{},"eips":[1],"sections":[{"type":"header","title":"t","level":4}]}`, "between 1 and 3"},
		{"preferred not compared", `{"meta":{},"eips":[1,2],"sections":[{"type":"author-preference","preferredEip":3,"strength":"strong","reasoning":"r"}]}`, "not one of the compared"},
		{"bad strength", `{"meta":{},"eips":[1,2],"sections":[{"type":"author-preference","preferredEip":1,"strength":"huge","reasoning":"r"}]}`, "strength"},
		{"tradeoff score range", `{"meta":{},"eips":[1],"sections":[{"type":"tradeoff-matrix","dimensions":["a"],"scores":[{"dimension":"a","eip":1,"score":11}]}]}`, "between 0 and 10"},
		{"risk severity range", `{"meta":{},"eips":[1],"sections":[{"type":"risk-analysis","risks":[{"eip":1,"title":"x","severity":101}]}]}`, "between 0 and 100"},
		{"facts source", `{"meta":{},"eips":[1],"sections":[{"type":"forkcast-facts","source":"me","eipId":1}]}`, "source"},
		{"bad map key", `{"meta":{},"eips":[1],"sections":[{"type":"quick-stats","stats":{"one":[]}}]}`, "not an EIP number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatalf("Parse() succeeded, want error")
			}
			if c != nil {
				t.Errorf("Parse() returned a partial comparison")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not a *FormatError", err)
			}
			if !strings.Contains(fe.UserMessage(), tt.message) {
				t.Errorf("message %q does not mention %q", fe.UserMessage(), tt.message)
			}
		})
	}
}

func TestRoundTripEverySectionKind(t *testing.T) {
	original := everySection()
	if err := Validate(original); err != nil {
		t.Fatalf("fixture invalid: %v", err)
	}
	seen := map[Kind]bool{}
	for _, s := range original.Sections {
		seen[s.Kind()] = true
	}
	for _, k := range Kinds {
		if !seen[k] {
			t.Errorf("fixture has no %s section", k)
		}
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(original, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if !Equal(original, parsed) {
		t.Error("Equal() = false after round trip")
	}
}

func TestUnknownSectionsArePreserved(t *testing.T) {
	input := `{"meta":{"title":"t"},"eips":[1,2],"sections":[
		{"type":"hologram","beam":{"power":9}},
		{"type":"text","content":"hi"}
	]}`
	c, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	unknown, ok := c.Sections[0].(*UnknownSection)
	if !ok {
		t.Fatalf("section 0 is %T, want *UnknownSection", c.Sections[0])
	}
	if unknown.Kind().Known() {
		t.Error("hologram reported as known")
	}

	out, err := Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var doc struct {
		Sections []map[string]any `json:"sections"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	beam, ok := doc.Sections[0]["beam"].(map[string]any)
	if !ok || beam["power"] != 9.0 {
		t.Errorf("unknown section payload lost: %v", doc.Sections[0])
	}
}

func TestExtraFieldsSurviveRoundTrip(t *testing.T) {
	input := `{"meta":{"title":"t","tags":["x"]},"eips":[1],"version":3,"sections":[
		{"type":"header","title":"Intro","anchor":"intro"}
	]}`
	c, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out, err := Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"version":3`, `"tags":["x"]`, `"anchor":"intro"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
	header := c.Sections[0].(*HeaderSection)
	if header.EffectiveLevel() != DefaultHeaderLevel {
		t.Errorf("EffectiveLevel() = %d, want %d", header.EffectiveLevel(), DefaultHeaderLevel)
	}
}

// Extras are kept for the envelope, meta and each section. Members nested
// inside rows, events or stats are not.
func TestExtrasStopAtSectionLevel(t *testing.T) {
	input := `{"meta":{"title":"t"},"eips":[1],"sections":[
		{"type":"comparison-table","note":"n","rows":[{"label":"Gas","values":{"1":"low"},"footnote":"f"}]}
	]}`
	c, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out, err := Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"note":"n"`) {
		t.Errorf("output %s lost the section-level member", out)
	}
	if strings.Contains(string(out), "footnote") {
		t.Errorf("output %s kept a row-level member", out)
	}
}

func TestBuilderIsCopyOnWrite(t *testing.T) {
	base := NewDefault(Meta{Title: "A vs B"}, []int{1, 2})
	if len(base.Sections) != 1 || base.Sections[0].Kind() != KindAuthorPreference {
		t.Fatalf("NewDefault sections = %v", base.Sections)
	}

	withText, err := base.WithSection(&TextSection{Content: "body"})
	if err != nil {
		t.Fatalf("WithSection() error = %v", err)
	}
	if len(base.Sections) != 1 {
		t.Errorf("WithSection mutated the receiver")
	}
	if len(withText.Sections) != 2 {
		t.Errorf("len = %d, want 2", len(withText.Sections))
	}

	moved, err := withText.MoveSection(1, 0)
	if err != nil {
		t.Fatalf("MoveSection() error = %v", err)
	}
	if moved.Sections[0].Kind() != KindText || withText.Sections[0].Kind() != KindAuthorPreference {
		t.Errorf("MoveSection order wrong: %v / %v", moved.Sections[0].Kind(), withText.Sections[0].Kind())
	}

	removed, err := moved.WithoutSection(0)
	if err != nil {
		t.Fatalf("WithoutSection() error = %v", err)
	}
	if len(removed.Sections) != 1 || len(moved.Sections) != 2 {
		t.Errorf("WithoutSection lengths = %d/%d", len(removed.Sections), len(moved.Sections))
	}

	if _, err := moved.MoveSection(0, 5); !errors.Is(err, ErrSectionIndex) {
		t.Errorf("MoveSection out of range error = %v", err)
	}
}

func TestFactsSectionsAreReadOnly(t *testing.T) {
	base := NewDefault(Meta{}, []int{1, 2})
	if _, err := base.WithSection(&ForkcastFactsSection{Source: ForkcastSource, EIPID: 1}); !errors.Is(err, ErrReadOnlySection) {
		t.Errorf("WithSection(facts) error = %v, want ErrReadOnlySection", err)
	}

	withFacts := base.WithFacts(1, FactsData{Title: "Facts"})
	if got := len(withFacts.Facts()); got != 1 {
		t.Fatalf("Facts() = %d, want 1", got)
	}
	if _, err := withFacts.ReplaceSection(1, &TextSection{Content: "x"}); !errors.Is(err, ErrReadOnlySection) {
		t.Errorf("ReplaceSection(facts) error = %v, want ErrReadOnlySection", err)
	}

	resolved, err := withFacts.WithResolvedFacts(1, FactsData{Title: "Resolved"})
	if err != nil {
		t.Fatalf("WithResolvedFacts() error = %v", err)
	}
	if withFacts.Facts()[0].Section.Data.Title != "Facts" {
		t.Error("WithResolvedFacts mutated the receiver")
	}
	if resolved.Facts()[0].Section.Data.Title != "Resolved" {
		t.Error("WithResolvedFacts did not apply data")
	}
}

func TestDecisionMatrixTotal(t *testing.T) {
	s := &DecisionMatrixSection{
		Criteria: []Criterion{{Name: "ux", Weight: 2}, {Name: "security", Weight: 3}},
		Scores:   ByEIP[map[string]float64]{"1": {"ux": 5, "security": 4}, "2": {}},
	}
	if total, ok := s.Total(1); !ok || total != 22 {
		t.Errorf("Total(1) = %v, %v; want 22, true", total, ok)
	}
	if _, ok := s.Total(2); ok {
		t.Error("Total(2) reported scores for an empty map")
	}
	if _, ok := s.Total(3); ok {
		t.Error("Total(3) reported scores for a missing EIP")
	}
}

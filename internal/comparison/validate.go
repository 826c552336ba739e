package comparison

import (
	"fmt"
	"strconv"
)

// requiredFields lists the JSON members that must be present and non-null for
// each kind. Presence is checked on the raw document; Validate checks values.
var requiredFields = map[Kind][]string{
	KindHeader:              {"title"},
	KindComparisonTable:     {"rows"},
	KindVisual:              {"src"},
	KindCallout:             {"content"},
	KindSummary:             {"points"},
	KindText:                {"content"},
	KindArgument:            {"claim"},
	KindDebate:              {"topic", "positions"},
	KindTimeline:            {"events"},
	KindQuickStats:          {"stats"},
	KindNorthStarComparison: {"alignment"},
	KindStakeholderImpacts:  {"impacts"},
	KindBenefitsTradeoffs:   {"data"},
	KindForkContext:         {"fork"},
	KindTradeoffMatrix:      {"dimensions", "scores"},
	KindRiskAnalysis:        {"risks"},
	KindDecisionMatrix:      {"criteria", "scores"},
	KindTimelineComparison:  {"phases", "timelines"},
	KindComplexityRadar:     {"dimensions", "values"},
	KindAuthorPreference:    {"preferredEip", "strength", "reasoning"},
	KindForkcastFacts:       {"source", "eipId"},
}

// Validate checks the envelope and every known section.
func Validate(c *Comparison) error {
	if c == nil {
		return formatError(-1, "document is empty", nil)
	}
	if len(c.EIPs) == 0 {
		return formatError(-1, `Field "eips" must list at least one EIP`, nil)
	}
	seen := make(map[int]struct{}, len(c.EIPs))
	for _, id := range c.EIPs {
		if id <= 0 {
			return formatError(-1, fmt.Sprintf("EIP number %d is not valid", id), nil)
		}
		if _, dup := seen[id]; dup {
			return formatError(-1, fmt.Sprintf("EIP-%d is listed more than once", id), nil)
		}
		seen[id] = struct{}{}
	}
	for i, s := range c.Sections {
		if s == nil {
			return formatError(i, "section is empty", nil)
		}
		if err := s.validate(c.EIPs); err != nil {
			return formatError(i, fmt.Sprintf("%s section: %s", s.Kind(), err.Error()), err)
		}
	}
	return nil
}

func (s *HeaderSection) validate([]int) error {
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	if s.Level != 0 && (s.Level < 1 || s.Level > 3) {
		return fmt.Errorf("level must be between 1 and 3, got %d", s.Level)
	}
	return nil
}

func (s *ComparisonTableSection) validate([]int) error {
	for i, row := range s.Rows {
		if row.Label == "" {
			return fmt.Errorf("row %d has no label", i+1)
		}
	}
	return nil
}

func (s *VisualSection) validate([]int) error {
	if s.Src == "" {
		return fmt.Errorf("src is required")
	}
	return nil
}

func (s *CalloutSection) validate([]int) error {
	switch s.Variant {
	case "", CalloutInfo, CalloutWarning, CalloutSuccess, CalloutDanger:
	default:
		return fmt.Errorf("unknown callout variant %q", s.Variant)
	}
	return nil
}

func (s *SummarySection) validate([]int) error { return nil }

func (s *TextSection) validate([]int) error { return nil }

func (s *ArgumentSection) validate(eips []int) error {
	if s.Claim == "" {
		return fmt.Errorf("claim is required")
	}
	switch s.Stance {
	case "", "for", "against":
	default:
		return fmt.Errorf("stance must be \"for\" or \"against\", got %q", s.Stance)
	}
	return nil
}

func (s *DebateSection) validate([]int) error {
	if s.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	return validateKeys(s.Positions)
}

func (s *TimelineSection) validate([]int) error {
	for i, e := range s.Events {
		if e.Label == "" {
			return fmt.Errorf("event %d has no label", i+1)
		}
	}
	return nil
}

func (s *QuickStatsSection) validate([]int) error {
	return validateKeys(s.Stats)
}

func (s *NorthStarComparisonSection) validate([]int) error {
	return validateKeys(s.Alignment)
}

func (s *StakeholderImpactsSection) validate([]int) error {
	return validateKeys(s.Impacts)
}

func (s *BenefitsTradeoffsSection) validate([]int) error {
	return validateKeys(s.Data)
}

func (s *ForkContextSection) validate([]int) error {
	if s.Fork == "" {
		return fmt.Errorf("fork is required")
	}
	return validateKeys(s.EIPStatus)
}

func (s *TradeoffMatrixSection) validate([]int) error {
	for _, sc := range s.Scores {
		if sc.Score < 0 || sc.Score > 10 {
			return fmt.Errorf("score for %q on EIP-%d must be between 0 and 10", sc.Dimension, sc.EIP)
		}
	}
	return nil
}

func (s *RiskAnalysisSection) validate([]int) error {
	for i, r := range s.Risks {
		if r.Severity < 0 || r.Severity > 100 {
			return fmt.Errorf("risk %d severity must be between 0 and 100", i+1)
		}
	}
	return nil
}

func (s *DecisionMatrixSection) validate([]int) error {
	for _, c := range s.Criteria {
		if c.Name == "" {
			return fmt.Errorf("criterion has no name")
		}
		if c.Weight < 0 {
			return fmt.Errorf("criterion %q has a negative weight", c.Name)
		}
	}
	for key, scores := range s.Scores {
		for name, v := range scores {
			if v < 0 || v > 10 {
				return fmt.Errorf("score for %q on EIP-%s must be between 0 and 10", name, key)
			}
		}
	}
	return validateKeys(s.Scores)
}

func (s *TimelineComparisonSection) validate([]int) error {
	return validateKeys(s.Timelines)
}

func (s *ComplexityRadarSection) validate([]int) error {
	for key, values := range s.Values {
		for name, v := range values {
			if v < 0 || v > 10 {
				return fmt.Errorf("value for %q on EIP-%s must be between 0 and 10", name, key)
			}
		}
	}
	return validateKeys(s.Values)
}

func (s *AuthorPreferenceSection) validate(eips []int) error {
	found := false
	for _, id := range eips {
		if id == s.PreferredEIP {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("preferred EIP-%d is not one of the compared EIPs", s.PreferredEIP)
	}
	switch s.Strength {
	case StrengthStrong, StrengthModerate, StrengthSlight:
	default:
		return fmt.Errorf("strength must be strong, moderate or slight, got %q", s.Strength)
	}
	return nil
}

func (s *ForkcastFactsSection) validate([]int) error {
	if s.Source != ForkcastSource {
		return fmt.Errorf("source must be %q, got %q", ForkcastSource, s.Source)
	}
	if s.EIPID <= 0 {
		return fmt.Errorf("eipId must be a positive EIP number")
	}
	return nil
}

// validateKeys rejects per-EIP map keys that are not EIP numbers.
func validateKeys[T any](m ByEIP[T]) error {
	for key := range m {
		if n, err := strconv.Atoi(key); err != nil || n <= 0 {
			return fmt.Errorf("key %q is not an EIP number", key)
		}
	}
	return nil
}

package comparison

import "encoding/json"

// Strength of an author's preference.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthSlight   Strength = "slight"
)

// ForkcastSource is the only accepted provenance tag on forkcast-facts sections.
const ForkcastSource = "forkcast"

// DefaultHeaderLevel applies when a header section has no level.
const DefaultHeaderLevel = 2

type HeaderSection struct {
	Title    string `json:"title"`
	Level    int    `json:"level,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Extras   `json:"-"`
}

// EffectiveLevel returns Level, or DefaultHeaderLevel when unset.
func (s *HeaderSection) EffectiveLevel() int {
	if s.Level == 0 {
		return DefaultHeaderLevel
	}
	return s.Level
}

type TableRow struct {
	Label  string        `json:"label"`
	Values ByEIP[string] `json:"values"`
}

type ComparisonTableSection struct {
	Title  string     `json:"title,omitempty"`
	Rows   []TableRow `json:"rows"`
	Extras `json:"-"`
}

type VisualSection struct {
	Title      string `json:"title,omitempty"`
	VisualType string `json:"visualType,omitempty"`
	Src        string `json:"src"`
	Alt        string `json:"alt,omitempty"`
	Caption    string `json:"caption,omitempty"`
	Extras     `json:"-"`
}

// Callout variants.
const (
	CalloutInfo    = "info"
	CalloutWarning = "warning"
	CalloutSuccess = "success"
	CalloutDanger  = "danger"
)

type CalloutSection struct {
	Variant string `json:"variant,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Extras  `json:"-"`
}

// EffectiveVariant returns Variant, or CalloutInfo when unset.
func (s *CalloutSection) EffectiveVariant() string {
	if s.Variant == "" {
		return CalloutInfo
	}
	return s.Variant
}

type SummarySection struct {
	Title  string   `json:"title,omitempty"`
	Points []string `json:"points"`
	Extras `json:"-"`
}

type TextSection struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Extras  `json:"-"`
}

type ArgumentSection struct {
	Title    string   `json:"title,omitempty"`
	EIP      int      `json:"eip,omitempty"`
	Stance   string   `json:"stance,omitempty"`
	Claim    string   `json:"claim"`
	Evidence []string `json:"evidence,omitempty"`
	Extras   `json:"-"`
}

type DebateSection struct {
	Title     string          `json:"title,omitempty"`
	Topic     string          `json:"topic"`
	Positions ByEIP[[]string] `json:"positions"`
	Extras    `json:"-"`
}

type TimelineEvent struct {
	Date        string `json:"date"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type TimelineSection struct {
	Title  string          `json:"title,omitempty"`
	Events []TimelineEvent `json:"events"`
	Extras `json:"-"`
}

type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type QuickStatsSection struct {
	Title  string        `json:"title,omitempty"`
	Stats  ByEIP[[]Stat] `json:"stats"`
	Extras `json:"-"`
}

type NorthStarAlignment struct {
	Impact      string `json:"impact,omitempty"`
	Description string `json:"description"`
}

// DefaultNorthStars are the protocol goals used when a section lists none.
var DefaultNorthStars = []string{"scaleL1", "scaleBlobs", "improveUX"}

type NorthStarComparisonSection struct {
	Title      string                               `json:"title,omitempty"`
	NorthStars []string                             `json:"northstars,omitempty"`
	Alignment  ByEIP[map[string]NorthStarAlignment] `json:"alignment"`
	Extras     `json:"-"`
}

type StakeholderImpactsSection struct {
	Title        string                   `json:"title,omitempty"`
	Stakeholders []string                 `json:"stakeholders,omitempty"`
	Impacts      ByEIP[map[string]string] `json:"impacts"`
	Extras       `json:"-"`
}

type BenefitsTradeoffs struct {
	Benefits  []string `json:"benefits"`
	Tradeoffs []string `json:"tradeoffs"`
}

type BenefitsTradeoffsSection struct {
	Title  string                   `json:"title,omitempty"`
	Data   ByEIP[BenefitsTradeoffs] `json:"data"`
	Extras `json:"-"`
}

type ForkContextSection struct {
	Title       string        `json:"title,omitempty"`
	Fork        string        `json:"fork"`
	Description string        `json:"description,omitempty"`
	EIPStatus   ByEIP[string] `json:"eipStatus,omitempty"`
	Extras      `json:"-"`
}

type TradeoffScore struct {
	Dimension string  `json:"dimension"`
	EIP       int     `json:"eip"`
	Score     float64 `json:"score"`
	Note      string  `json:"note,omitempty"`
}

type TradeoffMatrixSection struct {
	Title      string          `json:"title,omitempty"`
	Dimensions []string        `json:"dimensions"`
	Scores     []TradeoffScore `json:"scores"`
	Extras     `json:"-"`
}

// Score returns the score for dimension and eip, if one was given.
func (s *TradeoffMatrixSection) Score(dimension string, eip int) (TradeoffScore, bool) {
	for _, sc := range s.Scores {
		if sc.Dimension == dimension && sc.EIP == eip {
			return sc, true
		}
	}
	return TradeoffScore{}, false
}

type Risk struct {
	EIP        int     `json:"eip"`
	Title      string  `json:"title"`
	Severity   float64 `json:"severity"`
	Mitigation string  `json:"mitigation,omitempty"`
}

type RiskAnalysisSection struct {
	Title  string `json:"title,omitempty"`
	Risks  []Risk `json:"risks"`
	Extras `json:"-"`
}

type Criterion struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

type DecisionMatrixSection struct {
	Title    string                    `json:"title,omitempty"`
	Criteria []Criterion               `json:"criteria"`
	Scores   ByEIP[map[string]float64] `json:"scores"`
	Extras   `json:"-"`
}

// Total returns the weighted score of eip and whether any criterion was scored.
// Missing criteria count as zero.
func (s *DecisionMatrixSection) Total(eip int) (float64, bool) {
	scores, ok := s.Scores.For(eip)
	if !ok {
		return 0, false
	}
	var total float64
	scored := false
	for _, c := range s.Criteria {
		if v, ok := scores[c.Name]; ok {
			total += v * c.Weight
			scored = true
		}
	}
	return total, scored
}

type TimelineComparisonSection struct {
	Title     string                   `json:"title,omitempty"`
	Phases    []string                 `json:"phases"`
	Timelines ByEIP[map[string]string] `json:"timelines"`
	Extras    `json:"-"`
}

type ComplexityRadarSection struct {
	Title      string                    `json:"title,omitempty"`
	Dimensions []string                  `json:"dimensions"`
	Values     ByEIP[map[string]float64] `json:"values"`
	Extras     `json:"-"`
}

type AuthorPreferenceSection struct {
	PreferredEIP int      `json:"preferredEip"`
	Strength     Strength `json:"strength"`
	Reasoning    string   `json:"reasoning"`
	Extras       `json:"-"`
}

type ForkRelationship struct {
	Fork   string `json:"fork"`
	Status string `json:"status"`
	Layer  string `json:"layer,omitempty"`
}

// FactsData is the curated payload of a forkcast-facts section, copied from the
// EIP reference dataset.
type FactsData struct {
	Title              string             `json:"title,omitempty"`
	Description        string             `json:"description,omitempty"`
	Layman             string             `json:"laymanDescription,omitempty"`
	Benefits           []string           `json:"benefits,omitempty"`
	Tradeoffs          []string           `json:"tradeoffs,omitempty"`
	StakeholderImpacts map[string]string  `json:"stakeholderImpacts,omitempty"`
	NorthStarAlignment map[string]string  `json:"northStarAlignment,omitempty"`
	ForkRelationships  []ForkRelationship `json:"forkRelationships,omitempty"`
}

// Empty reports whether no fact was resolved.
func (d FactsData) Empty() bool {
	return d.Title == "" && d.Description == "" && d.Layman == "" &&
		len(d.Benefits) == 0 && len(d.Tradeoffs) == 0 &&
		len(d.StakeholderImpacts) == 0 && len(d.NorthStarAlignment) == 0 &&
		len(d.ForkRelationships) == 0
}

type ForkcastFactsSection struct {
	Source string    `json:"source"`
	EIPID  int       `json:"eipId"`
	Data   FactsData `json:"data"`
	Extras `json:"-"`
}

// UnknownSection keeps a section whose type is not recognised, byte for byte.
type UnknownSection struct {
	Type string
	Raw  json.RawMessage
}

func (s *UnknownSection) Kind() Kind          { return Kind(s.Type) }
func (s *UnknownSection) validate([]int) error { return nil }
func (s *UnknownSection) extras() *Extras      { return nil }

func (*HeaderSection) Kind() Kind              { return KindHeader }
func (*ComparisonTableSection) Kind() Kind     { return KindComparisonTable }
func (*VisualSection) Kind() Kind              { return KindVisual }
func (*CalloutSection) Kind() Kind             { return KindCallout }
func (*SummarySection) Kind() Kind             { return KindSummary }
func (*TextSection) Kind() Kind                { return KindText }
func (*ArgumentSection) Kind() Kind            { return KindArgument }
func (*DebateSection) Kind() Kind              { return KindDebate }
func (*TimelineSection) Kind() Kind            { return KindTimeline }
func (*QuickStatsSection) Kind() Kind          { return KindQuickStats }
func (*NorthStarComparisonSection) Kind() Kind { return KindNorthStarComparison }
func (*StakeholderImpactsSection) Kind() Kind  { return KindStakeholderImpacts }
func (*BenefitsTradeoffsSection) Kind() Kind   { return KindBenefitsTradeoffs }
func (*ForkContextSection) Kind() Kind         { return KindForkContext }
func (*TradeoffMatrixSection) Kind() Kind      { return KindTradeoffMatrix }
func (*RiskAnalysisSection) Kind() Kind        { return KindRiskAnalysis }
func (*DecisionMatrixSection) Kind() Kind      { return KindDecisionMatrix }
func (*TimelineComparisonSection) Kind() Kind  { return KindTimelineComparison }
func (*ComplexityRadarSection) Kind() Kind     { return KindComplexityRadar }
func (*AuthorPreferenceSection) Kind() Kind    { return KindAuthorPreference }
func (*ForkcastFactsSection) Kind() Kind       { return KindForkcastFacts }

var sectionFactories = map[Kind]func() Section{
	KindHeader:              func() Section { return &HeaderSection{} },
	KindComparisonTable:     func() Section { return &ComparisonTableSection{} },
	KindVisual:              func() Section { return &VisualSection{} },
	KindCallout:             func() Section { return &CalloutSection{} },
	KindSummary:             func() Section { return &SummarySection{} },
	KindText:                func() Section { return &TextSection{} },
	KindArgument:            func() Section { return &ArgumentSection{} },
	KindDebate:              func() Section { return &DebateSection{} },
	KindTimeline:            func() Section { return &TimelineSection{} },
	KindQuickStats:          func() Section { return &QuickStatsSection{} },
	KindNorthStarComparison: func() Section { return &NorthStarComparisonSection{} },
	KindStakeholderImpacts:  func() Section { return &StakeholderImpactsSection{} },
	KindBenefitsTradeoffs:   func() Section { return &BenefitsTradeoffsSection{} },
	KindForkContext:         func() Section { return &ForkContextSection{} },
	KindTradeoffMatrix:      func() Section { return &TradeoffMatrixSection{} },
	KindRiskAnalysis:        func() Section { return &RiskAnalysisSection{} },
	KindDecisionMatrix:      func() Section { return &DecisionMatrixSection{} },
	KindTimelineComparison:  func() Section { return &TimelineComparisonSection{} },
	KindComplexityRadar:     func() Section { return &ComplexityRadarSection{} },
	KindAuthorPreference:    func() Section { return &AuthorPreferenceSection{} },
	KindForkcastFacts:       func() Section { return &ForkcastFactsSection{} },
}

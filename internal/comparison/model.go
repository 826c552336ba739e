// Package comparison defines the EIP comparison document: a provenance header,
// the ordered EIP columns, and an ordered list of typed sections.
package comparison

import (
	"encoding/json"
	"strconv"
)

// Kind is the wire discriminant of a section.
type Kind string

const (
	KindHeader              Kind = "header"
	KindComparisonTable     Kind = "comparison-table"
	KindVisual              Kind = "visual"
	KindCallout             Kind = "callout"
	KindSummary             Kind = "summary"
	KindText                Kind = "text"
	KindArgument            Kind = "argument"
	KindDebate              Kind = "debate"
	KindTimeline            Kind = "timeline"
	KindQuickStats          Kind = "quick-stats"
	KindNorthStarComparison Kind = "northstar-comparison"
	KindStakeholderImpacts  Kind = "stakeholder-impacts"
	KindBenefitsTradeoffs   Kind = "benefits-tradeoffs"
	KindForkContext         Kind = "fork-context"
	KindTradeoffMatrix      Kind = "tradeoff-matrix"
	KindRiskAnalysis        Kind = "risk-analysis"
	KindDecisionMatrix      Kind = "decision-matrix"
	KindTimelineComparison  Kind = "timeline-comparison"
	KindComplexityRadar     Kind = "complexity-radar"
	KindAuthorPreference    Kind = "author-preference"
	KindForkcastFacts       Kind = "forkcast-facts"
)

// Kinds lists every known section kind in declaration order.
var Kinds = []Kind{
	KindHeader, KindComparisonTable, KindVisual, KindCallout, KindSummary, KindText,
	KindArgument, KindDebate, KindTimeline, KindQuickStats, KindNorthStarComparison,
	KindStakeholderImpacts, KindBenefitsTradeoffs, KindForkContext, KindTradeoffMatrix,
	KindRiskAnalysis, KindDecisionMatrix, KindTimelineComparison, KindComplexityRadar,
	KindAuthorPreference, KindForkcastFacts,
}

// Known reports whether k is one of the section kinds this package models.
func (k Kind) Known() bool {
	_, ok := sectionFactories[k]
	return ok
}

// Meta is free-text provenance for a comparison.
type Meta struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Created     string `json:"created"`
	Description string `json:"description"`

	Extras `json:"-"`
}

// Comparison is the aggregate root. EIPs order is column order, Sections order
// is render order.
type Comparison struct {
	Meta     Meta
	EIPs     []int
	Sections []Section

	// Extras holds top-level fields this package does not model.
	Extras Extras
}

// Section is one entry of a comparison. The set of implementations is closed;
// UnknownSection carries types this package does not recognise.
type Section interface {
	Kind() Kind
	validate(eips []int) error
	extras() *Extras
}

// Extras keeps JSON fields that have no struct field so a load and save cycle
// does not drop them.
type Extras map[string]json.RawMessage

func (e *Extras) extras() *Extras { return e }

// ByEIP is a per-EIP keyed map. Keys are the decimal form of the EIP number.
type ByEIP[T any] map[string]T

// For returns the entry for eip, if present.
func (m ByEIP[T]) For(eip int) (T, bool) {
	v, ok := m[EIPKey(eip)]
	return v, ok
}

// EIPKey is the map key used for eip in per-EIP maps.
func EIPKey(eip int) string {
	return strconv.Itoa(eip)
}

// Has reports whether eip is one of the comparison columns.
func (c *Comparison) Has(eip int) bool {
	for _, id := range c.EIPs {
		if id == eip {
			return true
		}
	}
	return false
}

// Index returns the column index of eip or -1.
func (c *Comparison) Index(eip int) int {
	for i, id := range c.EIPs {
		if id == eip {
			return i
		}
	}
	return -1
}

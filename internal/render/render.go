// Package render projects a comparison document onto a view tree and HTML.
// Rendering is a pure function of the document and the reference dataset.
package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/eips"
)

// Placeholder fills a cell whose per-EIP data is missing.
const Placeholder = "—"

// FactsDisclaimer is shown on every forkcast-facts section.
const FactsDisclaimer = "Factual data sourced from the Forkcast EIP repository. Not written by the author of this comparison."

// DefaultHeroWindow is how many leading sections may render an
// author-preference section as a hero block.
const DefaultHeroWindow = 3

// Records resolves EIP numbers to reference records for column labels.
type Records interface {
	Lookup(id int) (eips.Record, bool)
}

// Renderer turns comparisons into view trees. It is safe for concurrent use.
type Renderer struct {
	refs       Records
	md         *markdown
	heroWindow int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHeroWindow overrides DefaultHeroWindow.
func WithHeroWindow(n int) Option {
	return func(r *Renderer) { r.heroWindow = n }
}

// New creates a Renderer. refs may be nil, in which case columns are labelled
// with the EIP number only.
func New(refs Records, opts ...Option) *Renderer {
	r := &Renderer{
		refs:       refs,
		md:         newMarkdown(),
		heroWindow: DefaultHeroWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// View is the rendered document: the fixed header block followed by one node
// per rendered section, in document order.
type View struct {
	Header   *Node
	Sections []*Node
}

// Root wraps the view in a single article node.
func (v View) Root() *Node {
	root := el("article", "comparison", v.Header)
	root.add(v.Sections...)
	return root
}

// HTML serialises the view.
func (v View) HTML() string {
	return v.Root().HTML()
}

// sectionContext carries what a per-kind rule may read.
type sectionContext struct {
	doc   *comparison.Comparison
	index int
}

// Render projects c. Sections of unknown kind contribute nothing.
func (r *Renderer) Render(c *comparison.Comparison) View {
	view := View{Header: r.header(c)}
	for i, s := range c.Sections {
		node := r.section(sectionContext{doc: c, index: i}, s)
		if node == nil {
			continue
		}
		node.set("data-section-index", strconv.Itoa(i))
		node.set("data-type", string(s.Kind()))
		view.Sections = append(view.Sections, node)
	}
	return view
}

func (r *Renderer) header(c *comparison.Comparison) *Node {
	header := el("header", "comparison-header",
		textEl("h1", "comparison-title", c.Meta.Title),
	)
	if c.Meta.Description != "" {
		header.add(textEl("p", "comparison-description", c.Meta.Description))
	}
	byline := el("p", "comparison-byline")
	if c.Meta.Author != "" {
		byline.add(textEl("span", "comparison-author", "By "+c.Meta.Author))
	}
	if c.Meta.Created != "" {
		byline.add(textEl("time", "comparison-created", c.Meta.Created).set("datetime", c.Meta.Created))
	}
	header.add(byline)

	labels := el("ul", "comparison-eips")
	for _, id := range c.EIPs {
		labels.add(textEl("li", "eip-label", r.columnLabel(id)).set("data-eip", strconv.Itoa(id)))
	}
	return header.add(labels)
}

func (r *Renderer) section(ctx sectionContext, s comparison.Section) *Node {
	switch s := s.(type) {
	case *comparison.HeaderSection:
		return r.headerSection(s)
	case *comparison.ComparisonTableSection:
		return r.comparisonTable(ctx, s)
	case *comparison.VisualSection:
		return r.visual(s)
	case *comparison.CalloutSection:
		return r.callout(s)
	case *comparison.SummarySection:
		return r.summary(s)
	case *comparison.TextSection:
		return r.text(s)
	case *comparison.ArgumentSection:
		return r.argument(s)
	case *comparison.DebateSection:
		return r.debate(ctx, s)
	case *comparison.TimelineSection:
		return r.timeline(s)
	case *comparison.QuickStatsSection:
		return r.quickStats(ctx, s)
	case *comparison.NorthStarComparisonSection:
		return r.northStars(ctx, s)
	case *comparison.StakeholderImpactsSection:
		return r.stakeholders(ctx, s)
	case *comparison.BenefitsTradeoffsSection:
		return r.benefitsTradeoffs(ctx, s)
	case *comparison.ForkContextSection:
		return r.forkContext(ctx, s)
	case *comparison.TradeoffMatrixSection:
		return r.tradeoffMatrix(ctx, s)
	case *comparison.RiskAnalysisSection:
		return r.riskAnalysis(ctx, s)
	case *comparison.DecisionMatrixSection:
		return r.decisionMatrix(ctx, s)
	case *comparison.TimelineComparisonSection:
		return r.timelineComparison(ctx, s)
	case *comparison.ComplexityRadarSection:
		return r.complexityRadar(ctx, s)
	case *comparison.AuthorPreferenceSection:
		return r.authorPreference(ctx, s)
	case *comparison.ForkcastFactsSection:
		return r.forkcastFacts(s)
	default:
		return nil
	}
}

// columnLabel is "EIP-n" or "EIP-n: Title" when the dataset knows the EIP.
func (r *Renderer) columnLabel(id int) string {
	label := eips.Label(id)
	if r.refs == nil {
		return label
	}
	if rec, ok := r.refs.Lookup(id); ok && rec.Title != "" {
		return label + ": " + rec.Title
	}
	return label
}

var handlePattern = regexp.MustCompile(`@[A-Za-z0-9_-]+`)

// Author is the display form of free-text meta.author.
type Author struct {
	Name   string
	Handle string
}

// ParseAuthor splits "Name (@handle)" into its parts. Text before the first
// "(" is the name; the first @token inside the parentheses is the handle.
func ParseAuthor(raw string) Author {
	raw = strings.TrimSpace(raw)
	name, rest, found := strings.Cut(raw, "(")
	a := Author{Name: strings.TrimSpace(name)}
	if found {
		inner, _, _ := strings.Cut(rest, ")")
		a.Handle = handlePattern.FindString(inner)
	}
	if a.Name == "" {
		if a.Handle != "" {
			a.Name = a.Handle
		} else {
			a.Name = "Anonymous"
		}
	}
	return a
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// percent renders value on a 0..scale range as a CSS width, clamped.
func percent(value, scale float64) string {
	p := value * 100 / scale
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return fmt.Sprintf("width: %s%%", strconv.FormatFloat(p, 'f', -1, 64))
}

func placeholderCell(tag string) *Node {
	return textEl(tag, "placeholder", Placeholder)
}

func sectionTitle(title string) *Node {
	if title == "" {
		return nil
	}
	return textEl("h3", "section-title", title)
}

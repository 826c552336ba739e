package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/eips"
)

func (r *Renderer) headerSection(s *comparison.HeaderSection) *Node {
	level := s.EffectiveLevel()
	if level < 1 || level > 3 {
		level = comparison.DefaultHeaderLevel
	}
	n := el("section", "section section-header",
		textEl("h"+strconv.Itoa(level), "", s.Title),
	)
	if s.Subtitle != "" {
		n.add(textEl("p", "section-subtitle", s.Subtitle))
	}
	return n
}

// eipTable renders one row per label and one column per compared EIP. cell
// gets the row's index, so repeated labels stay distinct rows, and returns
// nil for missing data, which becomes a placeholder.
func (r *Renderer) eipTable(ctx sectionContext, corner string, rows []string, cell func(row, eip int) *Node) *Node {
	head := el("tr", "", textEl("th", "row-label", corner))
	for _, id := range ctx.doc.EIPs {
		head.add(textEl("th", "eip-column", r.columnLabel(id)).set("data-eip", strconv.Itoa(id)))
	}
	body := el("tbody", "")
	for i, row := range rows {
		tr := el("tr", "", textEl("th", "row-label", row))
		for _, id := range ctx.doc.EIPs {
			c := cell(i, id)
			if c == nil {
				c = placeholderCell("td")
			}
			c.set("data-eip", strconv.Itoa(id))
			tr.add(c)
		}
		body.add(tr)
	}
	return el("table", "eip-table", el("thead", "", head), body)
}

// eipGrid renders one equal-width column per compared EIP.
func (r *Renderer) eipGrid(ctx sectionContext, class string, column func(eip int) *Node) *Node {
	grid := el("div", "eip-grid "+class)
	grid.set("style", fmt.Sprintf("grid-template-columns: repeat(%d, 1fr)", len(ctx.doc.EIPs)))
	for _, id := range ctx.doc.EIPs {
		col := el("div", "eip-column", textEl("h4", "eip-label", r.columnLabel(id)))
		col.set("data-eip", strconv.Itoa(id))
		if body := column(id); body != nil {
			col.add(body)
		} else {
			col.set("class", "eip-column empty")
			col.add(placeholderCell("p"))
		}
		grid.add(col)
	}
	return grid
}

func list(class string, items []string) *Node {
	ul := el("ul", class)
	for _, item := range items {
		ul.add(textEl("li", "", item))
	}
	return ul
}

// rowKeys returns explicit when set, otherwise the sorted union of the inner
// map keys across all EIPs.
func rowKeys[T any](explicit []string, m comparison.ByEIP[map[string]T]) []string {
	if len(explicit) > 0 {
		return explicit
	}
	set := map[string]struct{}{}
	for _, inner := range m {
		for k := range inner {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Renderer) comparisonTable(ctx sectionContext, s *comparison.ComparisonTableSection) *Node {
	labels := make([]string, len(s.Rows))
	for i, row := range s.Rows {
		labels[i] = row.Label
	}
	table := r.eipTable(ctx, "", labels, func(i, eip int) *Node {
		v, ok := s.Rows[i].Values.For(eip)
		if !ok || v == "" {
			return nil
		}
		return textEl("td", "", v)
	})
	return el("section", "section comparison-table", sectionTitle(s.Title), table)
}

func (r *Renderer) visual(s *comparison.VisualSection) *Node {
	img := el("img", "").set("src", s.Src)
	img.set("alt", s.Alt)
	fig := el("figure", "visual-figure", img)
	if s.Caption != "" {
		fig.add(textEl("figcaption", "", s.Caption))
	}
	n := el("section", "section visual", sectionTitle(s.Title), fig)
	if s.VisualType != "" {
		n.set("data-visual-type", s.VisualType)
	}
	return n
}

func (r *Renderer) callout(s *comparison.CalloutSection) *Node {
	n := el("aside", "section callout callout-"+s.EffectiveVariant())
	if s.Title != "" {
		n.add(textEl("strong", "callout-title", s.Title))
	}
	body := el("div", "callout-body")
	body.Raw = r.md.render(s.Content)
	return n.add(body)
}

func (r *Renderer) summary(s *comparison.SummarySection) *Node {
	return el("section", "section summary", sectionTitle(s.Title), list("summary-points", s.Points))
}

func (r *Renderer) text(s *comparison.TextSection) *Node {
	body := el("div", "prose")
	body.Raw = r.md.render(s.Content)
	return el("section", "section text", sectionTitle(s.Title), body)
}

func (r *Renderer) argument(s *comparison.ArgumentSection) *Node {
	class := "section argument"
	if s.Stance != "" {
		class += " argument-" + s.Stance
	}
	n := el("section", class, sectionTitle(s.Title))
	if s.EIP != 0 {
		n.add(textEl("span", "eip-badge", r.columnLabel(s.EIP)).set("data-eip", strconv.Itoa(s.EIP)))
	}
	n.add(textEl("p", "argument-claim", s.Claim))
	if len(s.Evidence) > 0 {
		n.add(list("argument-evidence", s.Evidence))
	}
	return n
}

func (r *Renderer) debate(ctx sectionContext, s *comparison.DebateSection) *Node {
	grid := r.eipGrid(ctx, "debate-positions", func(eip int) *Node {
		points, ok := s.Positions.For(eip)
		if !ok || len(points) == 0 {
			return nil
		}
		return list("positions", points)
	})
	return el("section", "section debate", sectionTitle(s.Title), textEl("p", "debate-topic", s.Topic), grid)
}

func (r *Renderer) timeline(s *comparison.TimelineSection) *Node {
	ol := el("ol", "timeline-events")
	for _, e := range s.Events {
		item := el("li", "timeline-event",
			textEl("time", "", e.Date).set("datetime", e.Date),
			textEl("strong", "", e.Label),
		)
		if e.Description != "" {
			item.add(textEl("p", "", e.Description))
		}
		ol.add(item)
	}
	return el("section", "section timeline", sectionTitle(s.Title), ol)
}

// quickStats always emits one card per EIP; an EIP without stats gets a card
// with an empty list.
func (r *Renderer) quickStats(ctx sectionContext, s *comparison.QuickStatsSection) *Node {
	grid := el("div", "eip-grid stat-cards")
	grid.set("style", fmt.Sprintf("grid-template-columns: repeat(%d, 1fr)", len(ctx.doc.EIPs)))
	for _, id := range ctx.doc.EIPs {
		stats, _ := s.Stats.For(id)
		items := el("dl", "stats")
		for _, st := range stats {
			items.add(textEl("dt", "", st.Label), textEl("dd", "", st.Value))
		}
		card := el("div", "stat-card", textEl("h4", "eip-label", r.columnLabel(id)), items)
		card.set("data-eip", strconv.Itoa(id))
		if len(stats) == 0 {
			card.set("data-empty", "true")
		}
		grid.add(card)
	}
	return el("section", "section quick-stats", sectionTitle(s.Title), grid)
}

func (r *Renderer) northStars(ctx sectionContext, s *comparison.NorthStarComparisonSection) *Node {
	rows := s.NorthStars
	if len(rows) == 0 {
		rows = mergeKeys(comparison.DefaultNorthStars, rowKeys(nil, s.Alignment))
	}
	table := r.eipTable(ctx, "North star", rows, func(i, eip int) *Node {
		ns := rows[i]
		byStar, ok := s.Alignment.For(eip)
		if !ok {
			return nil
		}
		a, ok := byStar[ns]
		if !ok {
			return nil
		}
		td := el("td", "alignment")
		if a.Impact != "" {
			td.add(textEl("span", "impact impact-"+strings.ToLower(a.Impact), a.Impact))
		}
		return td.add(textEl("p", "", a.Description))
	})
	return el("section", "section northstar-comparison", sectionTitle(s.Title), table)
}

// mergeKeys returns base followed by the members of extra not in base.
func mergeKeys(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := map[string]bool{}
	for _, k := range base {
		seen[k] = true
	}
	for _, k := range extra {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

func (r *Renderer) stakeholders(ctx sectionContext, s *comparison.StakeholderImpactsSection) *Node {
	rows := rowKeys(s.Stakeholders, s.Impacts)
	table := r.eipTable(ctx, "Stakeholder", rows, func(i, eip int) *Node {
		who := rows[i]
		impacts, ok := s.Impacts.For(eip)
		if !ok {
			return nil
		}
		v, ok := impacts[who]
		if !ok || v == "" {
			return nil
		}
		return textEl("td", "", v)
	})
	return el("section", "section stakeholder-impacts", sectionTitle(s.Title), table)
}

func (r *Renderer) benefitsTradeoffs(ctx sectionContext, s *comparison.BenefitsTradeoffsSection) *Node {
	grid := r.eipGrid(ctx, "benefits-tradeoffs", func(eip int) *Node {
		bt, ok := s.Data.For(eip)
		if !ok {
			return nil
		}
		return el("div", "",
			textEl("h5", "", "Benefits"), list("benefits", bt.Benefits),
			textEl("h5", "", "Tradeoffs"), list("tradeoffs", bt.Tradeoffs),
		)
	})
	return el("section", "section benefits-tradeoffs", sectionTitle(s.Title), grid)
}

func (r *Renderer) forkContext(ctx sectionContext, s *comparison.ForkContextSection) *Node {
	n := el("section", "section fork-context", sectionTitle(s.Title), textEl("p", "fork-name", s.Fork))
	if s.Description != "" {
		n.add(textEl("p", "fork-description", s.Description))
	}
	grid := r.eipGrid(ctx, "fork-status", func(eip int) *Node {
		status, ok := s.EIPStatus.For(eip)
		if !ok || status == "" {
			return nil
		}
		return textEl("span", "status status-"+strings.ToLower(status), status)
	})
	return n.add(grid)
}

func (r *Renderer) tradeoffMatrix(ctx sectionContext, s *comparison.TradeoffMatrixSection) *Node {
	table := r.eipTable(ctx, "Dimension", s.Dimensions, func(i, eip int) *Node {
		dim := s.Dimensions[i]
		sc, ok := s.Score(dim, eip)
		if !ok {
			return nil
		}
		td := el("td", "score",
			el("div", "bar", el("div", "bar-fill").set("style", percent(sc.Score, 10))),
			textEl("span", "score-value", formatNumber(sc.Score)+"/10"),
		)
		if sc.Note != "" {
			td.add(textEl("p", "score-note", sc.Note))
		}
		return td
	})
	return el("section", "section tradeoff-matrix", sectionTitle(s.Title), table)
}

func severityLevel(v float64) string {
	switch {
	case v >= 67:
		return "high"
	case v >= 34:
		return "medium"
	default:
		return "low"
	}
}

func (r *Renderer) riskAnalysis(ctx sectionContext, s *comparison.RiskAnalysisSection) *Node {
	ul := el("ul", "risks")
	for _, risk := range s.Risks {
		item := el("li", "risk risk-"+severityLevel(risk.Severity),
			textEl("span", "eip-badge", r.columnLabel(risk.EIP)).set("data-eip", strconv.Itoa(risk.EIP)),
			textEl("strong", "risk-title", risk.Title),
			el("div", "bar", el("div", "bar-fill").set("style", percent(risk.Severity, 100))),
			textEl("span", "risk-severity", formatNumber(risk.Severity)+"/100"),
		)
		if risk.Mitigation != "" {
			item.add(textEl("p", "risk-mitigation", risk.Mitigation))
		}
		ul.add(item)
	}
	return el("section", "section risk-analysis", sectionTitle(s.Title), ul)
}

func (r *Renderer) decisionMatrix(ctx sectionContext, s *comparison.DecisionMatrixSection) *Node {
	labels := make([]string, len(s.Criteria))
	for i, c := range s.Criteria {
		labels[i] = c.Name
	}
	table := r.eipTable(ctx, "Criterion", labels, func(i, eip int) *Node {
		name := labels[i]
		scores, ok := s.Scores.For(eip)
		if !ok {
			return nil
		}
		v, ok := scores[name]
		if !ok {
			return nil
		}
		return textEl("td", "score", formatNumber(v))
	})

	best := math.Inf(-1)
	totals := make([]float64, len(ctx.doc.EIPs))
	scored := make([]bool, len(ctx.doc.EIPs))
	for i, id := range ctx.doc.EIPs {
		totals[i], scored[i] = s.Total(id)
		if scored[i] && totals[i] > best {
			best = totals[i]
		}
	}
	totalRow := el("tr", "totals", textEl("th", "row-label", "Weighted total"))
	for i, id := range ctx.doc.EIPs {
		var cell *Node
		if scored[i] {
			class := "total"
			if totals[i] == best {
				class += " leading"
			}
			cell = textEl("td", class, formatNumber(totals[i]))
		} else {
			cell = placeholderCell("td")
		}
		totalRow.add(cell.set("data-eip", strconv.Itoa(id)))
	}
	table.add(el("tfoot", "", totalRow))

	weights := el("ul", "criteria-weights")
	for _, c := range s.Criteria {
		weights.add(textEl("li", "", fmt.Sprintf("%s × %s", c.Name, formatNumber(c.Weight))))
	}
	return el("section", "section decision-matrix", sectionTitle(s.Title), table, weights)
}

func (r *Renderer) timelineComparison(ctx sectionContext, s *comparison.TimelineComparisonSection) *Node {
	table := r.eipTable(ctx, "Phase", s.Phases, func(i, eip int) *Node {
		phase := s.Phases[i]
		byPhase, ok := s.Timelines.For(eip)
		if !ok {
			return nil
		}
		v, ok := byPhase[phase]
		if !ok || v == "" {
			return nil
		}
		return textEl("td", "", v)
	})
	return el("section", "section timeline-comparison", sectionTitle(s.Title), table)
}

const (
	radarSize   = 240.0
	radarRadius = 100.0
)

// radarPoints places each dimension on a spoke starting at twelve o'clock.
// Missing values sit at the centre.
func radarPoints(dims []string, values map[string]float64) string {
	center := radarSize / 2
	pts := make([]string, len(dims))
	for i, d := range dims {
		v := values[d]
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(len(dims))
		x := center + radarRadius*v/10*math.Cos(angle)
		y := center + radarRadius*v/10*math.Sin(angle)
		pts[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}
	return strings.Join(pts, " ")
}

func (r *Renderer) complexityRadar(ctx sectionContext, s *comparison.ComplexityRadarSection) *Node {
	svg := el("svg", "radar")
	svg.set("viewBox", fmt.Sprintf("0 0 %g %g", radarSize, radarSize))
	svg.set("role", "img")
	if len(s.Dimensions) > 0 {
		full := make(map[string]float64, len(s.Dimensions))
		for _, d := range s.Dimensions {
			full[d] = 10
		}
		svg.add(el("polygon", "radar-grid").set("points", radarPoints(s.Dimensions, full)))
		for i, id := range ctx.doc.EIPs {
			values, ok := s.Values.For(id)
			poly := el("polygon", fmt.Sprintf("radar-series series-%d", i)).set("points", radarPoints(s.Dimensions, values))
			poly.set("data-eip", strconv.Itoa(id))
			if !ok {
				poly.set("data-empty", "true")
			}
			svg.add(poly)
		}
	}
	table := r.eipTable(ctx, "Dimension", s.Dimensions, func(i, eip int) *Node {
		dim := s.Dimensions[i]
		values, ok := s.Values.For(eip)
		if !ok {
			return nil
		}
		v, ok := values[dim]
		if !ok {
			return nil
		}
		return textEl("td", "", formatNumber(v)+"/10")
	})
	return el("section", "section complexity-radar", sectionTitle(s.Title), svg, table)
}

var strengthLabels = map[comparison.Strength]string{
	comparison.StrengthStrong:   "Strongly prefers",
	comparison.StrengthModerate: "Prefers",
	comparison.StrengthSlight:   "Slightly prefers",
}

// authorPreference renders a hero block near the top of the document and a
// compact card elsewhere. Both carry the same preferred EIP, strength and
// reasoning.
func (r *Renderer) authorPreference(ctx sectionContext, s *comparison.AuthorPreferenceSection) *Node {
	verb := strengthLabels[s.Strength]
	if verb == "" {
		verb = "Prefers"
	}
	preferred := textEl("span", "preferred-eip", eips.Label(s.PreferredEIP)).set("data-eip", strconv.Itoa(s.PreferredEIP))
	strength := textEl("span", "strength strength-"+string(s.Strength), string(s.Strength))
	reasoning := textEl("p", "reasoning", s.Reasoning)

	if ctx.index >= r.heroWindow {
		return el("section", "section author-preference compact",
			el("p", "preference-line", textEl("span", "", verb), preferred, strength),
			reasoning,
		)
	}

	author := ParseAuthor(ctx.doc.Meta.Author)
	who := el("div", "author", textEl("span", "author-name", author.Name))
	if author.Handle != "" {
		who.add(textEl("span", "author-handle", author.Handle))
	}

	indicators := el("div", "preference-indicators")
	width := 100.0
	if n := len(ctx.doc.EIPs); n > 0 {
		width = 100.0 / float64(n)
	}
	for _, id := range ctx.doc.EIPs {
		class := "indicator"
		if id == s.PreferredEIP {
			class += " active"
		}
		ind := el("span", class).set("data-eip", strconv.Itoa(id))
		ind.set("style", fmt.Sprintf("width: %s%%", strconv.FormatFloat(width, 'f', 4, 64)))
		indicators.add(ind)
	}

	return el("section", "section author-preference hero",
		who,
		el("p", "preference-line", textEl("span", "", verb), preferred, strength),
		reasoning,
		indicators,
	)
}

func (r *Renderer) forkcastFacts(s *comparison.ForkcastFactsSection) *Node {
	n := el("section", "section forkcast-facts external-source")
	n.set("data-source", s.Source)
	heading := eips.Label(s.EIPID)
	if s.Data.Title != "" {
		heading += ": " + s.Data.Title
	}
	n.add(textEl("h3", "section-title", heading))
	n.add(textEl("p", "disclaimer", FactsDisclaimer))

	d := s.Data
	if d.Empty() {
		return n.add(textEl("p", "placeholder", fmt.Sprintf("No reference data available for %s.", eips.Label(s.EIPID))))
	}
	if d.Description != "" {
		n.add(textEl("p", "facts-description", d.Description))
	}
	if d.Layman != "" {
		n.add(textEl("p", "facts-layman", d.Layman))
	}
	if len(d.Benefits) > 0 {
		n.add(textEl("h5", "", "Benefits"), list("benefits", d.Benefits))
	}
	if len(d.Tradeoffs) > 0 {
		n.add(textEl("h5", "", "Tradeoffs"), list("tradeoffs", d.Tradeoffs))
	}
	if len(d.StakeholderImpacts) > 0 {
		n.add(textEl("h5", "", "Stakeholder impacts"), definitions("stakeholder-impacts", d.StakeholderImpacts))
	}
	if len(d.NorthStarAlignment) > 0 {
		n.add(textEl("h5", "", "North star alignment"), definitions("northstar-alignment", d.NorthStarAlignment))
	}
	if len(d.ForkRelationships) > 0 {
		forks := el("ul", "fork-relationships")
		for _, rel := range d.ForkRelationships {
			forks.add(textEl("li", "", rel.Fork+": "+rel.Status))
		}
		n.add(forks)
	}
	return n
}

// definitions renders m as a dl in key order.
func definitions(class string, m map[string]string) *Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dl := el("dl", class)
	for _, k := range keys {
		dl.add(textEl("dt", "", k), textEl("dd", "", m[k]))
	}
	return dl
}

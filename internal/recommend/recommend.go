// Package recommend evaluates a table of independent rules over diagram facts
// and ranks the advice they produce.
package recommend

import "sort"

// Level grades priority, impact and effort.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

var levelRank = map[Level]int{High: 3, Medium: 2, Low: 1}

// Implementation describes how to act on a recommendation.
type Implementation struct {
	Steps         []string `json:"steps"`
	EstimatedTime string   `json:"estimatedTime"`
	Technologies  []string `json:"technologies"`
}

// Recommendation is one piece of ranked advice.
type Recommendation struct {
	Rank           int            `json:"rank"`
	ID             string         `json:"id"`
	Category       string         `json:"category"`
	Priority       Level          `json:"priority"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Impact         Level          `json:"impact"`
	Effort         Level          `json:"effort"`
	Implementation Implementation `json:"implementation"`
}

// Rule pairs a predicate over Facts with the advice it yields.
type Rule struct {
	ID    string
	Match func(f *Facts) bool
	Build func(f *Facts) Recommendation
}

// Generate evaluates rules in order and returns the triggered advice sorted
// by priority and impact descending, then effort ascending. Ties keep
// generation order. Ranks start at 1.
func Generate(f *Facts, rules []Rule) []Recommendation {
	out := []Recommendation{}
	if f == nil {
		return out
	}
	for _, r := range rules {
		if r.Match == nil || r.Build == nil || !r.Match(f) {
			continue
		}
		rec := r.Build(f)
		if rec.ID == "" {
			rec.ID = r.ID
		}
		out = append(out, rec)
	}
	Sort(out)
	return out
}

// Sort orders recs in place and reassigns ranks.
func Sort(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if levelRank[a.Priority] != levelRank[b.Priority] {
			return levelRank[a.Priority] > levelRank[b.Priority]
		}
		if levelRank[a.Impact] != levelRank[b.Impact] {
			return levelRank[a.Impact] > levelRank[b.Impact]
		}
		return levelRank[a.Effort] < levelRank[b.Effort]
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}
}

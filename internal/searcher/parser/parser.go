// Package parser splits a conjunctive query string into its terms.
package parser

import (
	"regexp"
	"strings"
)

var andSeparator = regexp.MustCompile(`(?i)\bAND\b`)

type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Empty reports whether the plan has no terms and therefore matches nothing.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse splits query on the word "AND" in any case, trims each piece and
// drops empty ones. Terms are lower-cased to match indexed terms.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	for _, part := range andSeparator.Split(query, -1) {
		term := strings.ToLower(strings.TrimSpace(part))
		if term == "" {
			continue
		}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}

// FromTerms builds a plan from terms a client already split. Terms are
// normalised the same way Parse normalises them.
func FromTerms(terms []string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0, len(terms)),
		RawQuery: strings.Join(terms, " AND "),
	}
	for _, t := range terms {
		term := strings.ToLower(strings.TrimSpace(t))
		if term == "" {
			continue
		}
		plan.Terms = append(plan.Terms, term)
	}
	return plan
}

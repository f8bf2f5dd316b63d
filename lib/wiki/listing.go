package wiki

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ListOptions is the listing-filter contract shared by both backends.
// Rating and Created take an optional comparison prefix in the list
// module's own mini-syntax, e.g. ">=20" or "<2015-01".
type ListOptions struct {
	Author  string
	Tag     string
	Rating  string
	Created string
	Limit   int
	// Body names extra per-page fields the live listing should resolve,
	// space separated ("title created_by rating tags total").
	Body string
}

// Empty reports whether no filter is set at all.
func (o ListOptions) Empty() bool {
	return o.Author == "" && o.Tag == "" && o.Rating == "" &&
		o.Created == "" && o.Limit == 0
}

var comparisonRegex = regexp.MustCompile(`^(>=|<=|>|<|=|)(.+)$`)

// Comparison is a parsed filter operand: an operator and its operand
// with digit groups kept separate so date filters can compare on a
// prefix.
type Comparison struct {
	Operator string
	Operand  string
}

// ParseComparison splits a filter value like "<=20" into its operator
// and operand. A missing operator means equality.
func ParseComparison(s string) (Comparison, error) {
	groups := comparisonRegex.FindStringSubmatch(strings.TrimSpace(s))
	if groups == nil || groups[2] == "" {
		return Comparison{}, fmt.Errorf("invalid comparison: %q", s)
	}
	op := groups[1]
	if op == "" {
		op = "="
	}
	switch op {
	case ">", "<", ">=", "<=", "=":
	default:
		return Comparison{}, fmt.Errorf("invalid comparison operator: %q", s)
	}
	return Comparison{Operator: op, Operand: groups[2]}, nil
}

// Int returns the operand as an integer.
func (c Comparison) Int() (int, error) {
	return strconv.Atoi(c.Operand)
}

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/iop-labs/profiled/pkg/profile"
)

// ValidationError names the search parameter that failed validation.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for field %s", e.Field)
}

// filters holds the compiled predicates of one search request.
//
// Type and name are wildcard expressions (* and ?), extraData a full regular
// expression. Every predicate is compiled with a per-match timeout, and the
// whole request carries an aggregate matching budget: once either budget is
// exhausted the predicate stops matching further rows instead of hanging the
// request, so a catastrophic pattern degrades to a partial result.
type filters struct {
	typeRe  *regexp2.Regexp
	nameRe  *regexp2.Regexp
	extraRe *regexp2.Regexp

	location profile.Location
	radius   float64

	deadline time.Time
	timedOut bool
}

// compileFilters compiles the request predicates. Empty expressions match
// everything.
func compileFilters(typeExpr, nameExpr, extraExpr string, matchTimeout, budget time.Duration) (*filters, error) {
	f := &filters{deadline: time.Now().Add(budget)}

	var err error
	if typeExpr != "" {
		if f.typeRe, err = compileWildcard(typeExpr, matchTimeout); err != nil {
			return nil, &ValidationError{Field: "type"}
		}
	}
	if nameExpr != "" {
		if f.nameRe, err = compileWildcard(nameExpr, matchTimeout); err != nil {
			return nil, &ValidationError{Field: "name"}
		}
	}
	if extraExpr != "" {
		if f.extraRe, err = compileRegex(extraExpr, matchTimeout); err != nil {
			return nil, &ValidationError{Field: "extraData"}
		}
	}
	return f, nil
}

// withinRadius reports whether the candidate location passes the optional
// great-circle filter.
func (f *filters) withinRadius(loc profile.Location) bool {
	if f.radius <= 0 {
		return true
	}
	return Distance(f.location, loc) <= f.radius
}

// match applies the text predicates to one profile.
func (f *filters) match(info *profile.Info) bool {
	return f.matchOne(f.typeRe, info.Type) &&
		f.matchOne(f.nameRe, info.Name) &&
		f.matchOne(f.extraRe, info.ExtraData)
}

// matchOne runs one predicate under the aggregate budget. A timeout, per
// match or aggregate, makes the predicate stop matching further rows.
func (f *filters) matchOne(re *regexp2.Regexp, s string) bool {
	if re == nil {
		return true
	}
	if f.timedOut || time.Now().After(f.deadline) {
		f.timedOut = true
		return false
	}
	ok, err := re.MatchString(s)
	if err != nil {
		// regexp2 returns an error only on match timeout.
		f.timedOut = true
		return false
	}
	return ok
}

// compileWildcard compiles a wildcard expression (* matches any run,
// ? matches one rune) into an anchored, case-insensitive pattern.
func compileWildcard(expr string, matchTimeout time.Duration) (*regexp2.Regexp, error) {
	var sb strings.Builder
	sb.WriteString(`^`)
	for _, r := range expr {
		switch r {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp2.Escape(string(r)))
		}
	}
	sb.WriteString(`$`)

	re, err := regexp2.Compile(sb.String(), regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// compileRegex compiles a full (unanchored) regular expression.
func compileRegex(expr string, matchTimeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

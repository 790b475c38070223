package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxDice bounds the die count of a single expression.
const MaxDice = 100

// Keep selects which dice count toward a total.
type Keep int

const (
	KeepAll Keep = iota
	KeepHighest
	KeepLowest
)

// Expression is a parsed dice expression.
//
// Invariant: 1 <= Count <= MaxDice, Sides >= 2, and 1 <= KeepN < Count when
// Keep != KeepAll.
type Expression struct {
	Count    int
	Sides    int
	Keep     Keep
	KeepN    int
	Modifier int
}

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)(?:(kh|kl)(\d+))?(?:([+-])(\d+))?$`)

// Parse parses expressions of the form [N]dS[khK|klK][+M|-M], case-insensitive
// and ignoring spaces: "d20", "1d20+2", "2d20kh1+3", "2d20kl1-1".
//
// Postcondition: Returns a valid Expression or an error naming the input.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(expr), " ", ""))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", expr)
	}

	e := Expression{Count: 1}
	var err error
	if m[1] != "" {
		if e.Count, err = strconv.Atoi(m[1]); err != nil {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: %w", expr, err)
		}
	}
	if e.Count < 1 || e.Count > MaxDice {
		return Expression{}, fmt.Errorf("dice: die count in %q must be between 1 and %d", expr, MaxDice)
	}
	if e.Sides, err = strconv.Atoi(m[2]); err != nil || e.Sides < 2 {
		return Expression{}, fmt.Errorf("dice: die sides in %q must be at least 2", expr)
	}
	if m[3] != "" {
		e.Keep = KeepHighest
		if m[3] == "kl" {
			e.Keep = KeepLowest
		}
		if e.KeepN, err = strconv.Atoi(m[4]); err != nil || e.KeepN < 1 || e.KeepN >= e.Count {
			return Expression{}, fmt.Errorf("dice: keep count in %q must be between 1 and %d", expr, e.Count-1)
		}
	}
	if m[5] != "" {
		if e.Modifier, err = strconv.Atoi(m[6]); err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
		if m[5] == "-" {
			e.Modifier = -e.Modifier
		}
	}
	return e, nil
}

// MustParse parses expr and panics on error.
//
// Precondition: expr must be a valid dice expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}

// String returns the normalized form of e, which Parse accepts.
func (e Expression) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dd%d", e.Count, e.Sides)
	switch e.Keep {
	case KeepHighest:
		fmt.Fprintf(&b, "kh%d", e.KeepN)
	case KeepLowest:
		fmt.Fprintf(&b, "kl%d", e.KeepN)
	}
	if e.Modifier != 0 {
		fmt.Fprintf(&b, "%+d", e.Modifier)
	}
	return b.String()
}

package dice

import "sort"

// Roll evaluates expr with src.
//
// Precondition: expr came from Parse; src is non-nil.
// Postcondition: len(Rolled) == expr.Count; len(Kept) == expr.KeepN when a
// keep rule is set, otherwise Kept equals Rolled.
func Roll(expr Expression, src Source) RollResult {
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}

	kept := rolled
	if expr.Keep != KeepAll {
		sorted := append([]int(nil), rolled...)
		if expr.Keep == KeepHighest {
			sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		} else {
			sort.Ints(sorted)
		}
		kept = sorted[:expr.KeepN]
	}

	return RollResult{
		Expression: expr.String(),
		Rolled:     rolled,
		Kept:       kept,
		Modifier:   expr.Modifier,
	}
}

// RollExpr parses expr and rolls it with src.
func RollExpr(expr string, src Source) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return Roll(e, src), nil
}

package utils

// EDGETOL is the slack on domain bounds and on normalized cell coordinates
const EDGETOL = 1.e-9

type EvalOp uint8

const (
	Equal EvalOp = iota
	LessOrEqual
	GreaterOrEqual
)

// Compare applies op to a and b, treating values within EDGETOL as equal
func Compare(op EvalOp, a, b float64) bool {
	near := a-b <= EDGETOL && b-a <= EDGETOL
	switch op {
	case Equal:
		return near
	case LessOrEqual:
		return a < b || near
	case GreaterOrEqual:
		return a > b || near
	}
	return false
}

// InRange reports whether lo <= x <= hi with EDGETOL slack on both ends
func InRange(x, lo, hi float64) bool {
	return Compare(GreaterOrEqual, x, lo) && Compare(LessOrEqual, x, hi)
}

package evaluator

// Budget holds the resource limits for evaluating a program. Nil fields are
// unlimited.
type Budget struct {
	TimeMs   *int64
	MaxCalls *int64
}

// BudgetTracker reports resource consumption so far.
type BudgetTracker struct {
	Calls     int64
	ElapsedMs int64
}

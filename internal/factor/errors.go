package factor

import "fmt"

// ScopeMismatchError reports a factor whose scope, cardinalities or table
// size disagree with what an operation requires.
type ScopeMismatchError struct {
	Variable int    // offending variable id, -1 when the problem is the whole scope
	Name     string // set by callers that know variable names
	Reason   string
}

func (e *ScopeMismatchError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("scope mismatch on %q: %s", e.Name, e.Reason)
	case e.Variable >= 0:
		return fmt.Sprintf("scope mismatch on variable %d: %s", e.Variable, e.Reason)
	default:
		return "scope mismatch: " + e.Reason
	}
}

// ZeroMassError signals that a table has (numerically) no mass left, which
// means the evidence has probability zero under the model.
type ZeroMassError struct {
	Mass float64
}

func (e *ZeroMassError) Error() string {
	return fmt.Sprintf("zero total mass (%g): evidence has probability zero under the model", e.Mass)
}

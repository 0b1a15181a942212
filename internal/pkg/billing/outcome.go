package billing

// Result tells whether a handler changed state or deliberately did nothing.
type Result string

const (
	ResultApplied Result = "applied"
	ResultSkipped Result = "skipped"
)

// Outcome is what a reconciliation handler reports back for one event.
// Skipped outcomes are acknowledged to the sender like applied ones, but the
// reason is kept on the webhook ledger so missing metadata stays visible.
type Outcome struct {
	Result Result
	Reason string
}

func applied(reason string) Outcome {
	return Outcome{Result: ResultApplied, Reason: reason}
}

func skipped(reason string) Outcome {
	return Outcome{Result: ResultSkipped, Reason: reason}
}

// IsSkipped reports whether the handler made no changes.
func (o Outcome) IsSkipped() bool {
	return o.Result == ResultSkipped
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Result)
	}
	return string(o.Result) + ": " + o.Reason
}

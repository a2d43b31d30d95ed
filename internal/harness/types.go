package harness

// Trace event types.
const (
	EventIndex  = "index"
	EventQuery  = "query"
	EventRemove = "remove"
)

// TraceEvent is one recorded effect of a scenario step.
type TraceEvent struct {
	Type      string     `json:"type"`
	Step      int        `json:"step"`
	Workspace string     `json:"workspace,omitempty"`
	Path      string     `json:"path,omitempty"`
	Query     string     `json:"query,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      [][]string `json:"rows,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds index submissions, removals and query results in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// lastQuery returns the most recent query event for name.
func (r *Result) lastQuery(name string) (TraceEvent, bool) {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if e := r.Trace[i]; e.Type == EventQuery && e.Query == name {
			return e, true
		}
	}
	return TraceEvent{}, false
}

package shared

import "log/slog"

// Result is the outcome of a best-effort side path (badge re-evaluation,
// follow-up mission progress, notification). A failed Result never aborts the
// primary operation that produced it; callers may inspect or ignore it.
type Result struct {
	Op  string
	Err error
}

// Ok returns a successful result for op.
func Ok(op string) Result {
	return Result{Op: op}
}

// Failed returns a failed result for op.
func Failed(op string, err error) Result {
	return Result{Op: op, Err: err}
}

// OK reports whether the side path succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if r.Err == nil {
		return r.Op + ": ok"
	}
	return r.Op + ": " + r.Err.Error()
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	if r.Err == nil {
		return slog.GroupValue(slog.String("op", r.Op), slog.Bool("ok", true))
	}
	return slog.GroupValue(
		slog.String("op", r.Op),
		slog.Bool("ok", false),
		slog.String("error", r.Err.Error()),
	)
}

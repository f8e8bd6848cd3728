package importer

// resultKind classifies the outcome of one orchestrator run.
type resultKind int

const (
	kindSuccess resultKind = iota
	kindTerminalFailure
	kindRetryableFailure
)

// Result is the explicit outcome of processing one import job. It replaces
// sentinel-exception retry signalling: the queue integration layer translates
// a retryable result into the queue's native retry mechanism, while terminal
// failures and successes both end the job's dispatch lifecycle.
type Result struct {
	kind    resultKind
	message string
	cause   error
}

// Success reports a completed run.
func Success() Result {
	return Result{kind: kindSuccess}
}

// TerminalFailure reports a run that failed for a reason re-running cannot
// fix (bad input); message is what was stored on the job row.
func TerminalFailure(message string) Result {
	return Result{kind: kindTerminalFailure, message: message}
}

// RetryableFailure reports a transient fault; the whole run should be
// repeated from scratch.
func RetryableFailure(cause error) Result {
	return Result{kind: kindRetryableFailure, cause: cause}
}

// Succeeded reports whether the run completed.
func (r Result) Succeeded() bool { return r.kind == kindSuccess }

// Retryable reports whether the run should be re-dispatched.
func (r Result) Retryable() bool { return r.kind == kindRetryableFailure }

// Message returns the terminal failure message, if any.
func (r Result) Message() string { return r.message }

// Cause returns the transient fault behind a retryable failure, if any.
func (r Result) Cause() error { return r.cause }

package executor

import "fmt"

// Error codes carried by order lifecycle failures.
const (
	CodeOrderSubmit = "ORDER_SUBMIT_ERROR"
	CodeOrderCancel = "ORDER_CANCEL_ERROR"
)

// SubmitError is a broker rejection surfaced by the direct-submission
// path. The signal-driven path never raises it; there the rejection is
// recorded on the returned order instead.
type SubmitError struct {
	Reason string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("order submission failed: %s", e.Reason)
}

// ErrorCode satisfies response.Coded.
func (e *SubmitError) ErrorCode() string {
	return CodeOrderSubmit
}

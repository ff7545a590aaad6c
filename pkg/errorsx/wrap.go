package errorsx

import "errors"

// ReasonedError carries a machine-readable reason alongside the cause.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap tags err with a reason code. Nil passes through, and an error that
// already carries a reason keeps its original one.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, ok := lookupReason(err); ok {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Reason extracts the reason code from err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	if code, ok := lookupReason(err); ok {
		return code
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func lookupReason(err error) (ReasonCode, bool) {
	if err == nil {
		return ReasonUnknown, false
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return ReasonUnknown, false
}

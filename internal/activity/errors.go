package activity

// Error codes for rejected activity actions.
const (
	ErrCodePermission = "permission"
	ErrCodeValidation = "validation"
	ErrCodeConflict   = "conflict"
	ErrCodeThrottled  = "throttled"
)

// Error wraps a code and the human-readable message relayed to the
// acting client.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func permissionErr(msg string) *Error {
	return &Error{Code: ErrCodePermission, Message: msg}
}

func validationErr(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

func conflictErr(msg string) *Error {
	return &Error{Code: ErrCodeConflict, Message: msg}
}

func throttledErr(msg string) *Error {
	return &Error{Code: ErrCodeThrottled, Message: msg}
}

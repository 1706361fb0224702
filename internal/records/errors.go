package records

import "fmt"

// RecordInvalidError reports a record failing JSON Schema validation or one of
// the catalogue's structural invariants.
type RecordInvalidError struct {
	FileIdentifier string
	Cause          error
}

func (e *RecordInvalidError) Error() string {
	return fmt.Sprintf("record %s invalid: %v", e.FileIdentifier, e.Cause)
}

func (e *RecordInvalidError) Unwrap() error { return e.Cause }

func invalid(fileIdentifier, format string, args ...any) error {
	return &RecordInvalidError{
		FileIdentifier: fileIdentifier,
		Cause:          fmt.Errorf(format, args...),
	}
}

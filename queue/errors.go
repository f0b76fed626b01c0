package queue

import (
	"errors"
	"fmt"
)

// Fehlerklassen der Pipeline. Der Worker entscheidet anhand der Klasse, ob
// ein Task erneut eingereiht wird: nur transiente Fehler werden wiederholt,
// Validierungs- und permanente Fehler markieren den Record sofort als
// fehlgeschlagen. Kein Record-Fehler bricht jemals einen Batch ab.

// RetryableError markiert einen transienten Fehler (z.B. Verbindungsabbruch).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError markiert einen nicht wiederholbaren Record-Fehler
// (z.B. Constraint-Verletzung).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// ValidationError markiert eine unbrauchbare Eingabe, die vor der Berechnung
// abgewiesen wird.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// Retryable verpackt err als transienten Fehler.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent verpackt err als permanenten Fehler.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Validation verpackt err als Validierungsfehler.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

// IsRetryable meldet, ob err wiederholt werden soll. Unklassifizierte Fehler
// gelten als transient: alle Stages sind idempotent, ein erneuter Versuch ist
// immer sicher.
func IsRetryable(err error) bool {
	return !IsPermanent(err) && !IsValidation(err)
}

// IsPermanent meldet, ob err als permanent klassifiziert wurde.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsValidation meldet, ob err als Validierungsfehler klassifiziert wurde.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Package deletion contains the domain types of the coordinated deletion
// operation: the request, the field-level error codes, and the result.
package deletion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid deletion request")

// PasswordField is the field key reauthentication failures are reported under.
const PasswordField = "password"

// Reauthentication error codes reported under PasswordField.
const (
	CodeWrongPassword   = "auth/wrong-password"
	CodeTooManyRequests = "auth/too-many-requests"
	CodeUserMismatch    = "auth/user-mismatch"
	CodeInternalError   = "auth/internal-error"
)

// FieldErrors maps a form field to an error code.
type FieldErrors map[string]string

// Request is a one-shot deletion request. It is consumed once and never
// persisted.
type Request struct {
	Identity session.Identity `json:"identity" validate:"required"`
	// Secret is the freshly supplied credential used to reauthenticate.
	Secret string `json:"-" validate:"required"`
	// TargetIDs are report ids. Mutually exclusive with All.
	TargetIDs []string `json:"target_ids,omitempty" validate:"omitempty,max=500,dive,required,record_id"`
	// All deletes every report under the identity's namespace.
	All bool `json:"all,omitempty"`
}

// Validate checks r with struct tags and the All/TargetIDs exclusivity rule.
func (r Request) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("record_id", validateRecordID); err != nil {
		return fmt.Errorf("failed to register record_id validator: %w", err)
	}
	if err := v.Struct(r); err != nil {
		return formatValidationErrors(err)
	}

	switch {
	case r.All && len(r.TargetIDs) > 0:
		return fmt.Errorf("%w: specify target ids OR all, not both", ErrInvalidRequest)
	case !r.All && len(r.TargetIDs) == 0:
		return fmt.Errorf("%w: no target ids", ErrInvalidRequest)
	}
	return nil
}

// validateRecordID accepts a single path segment.
func validateRecordID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && id != "." && id != ".." && !strings.Contains(id, "/")
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Namespace()))
		case "record_id":
			messages = append(messages, fmt.Sprintf("%s: invalid record id %q", e.Namespace(), e.Value()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s: at most %s entries", e.Namespace(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s: failed %s validation", e.Namespace(), e.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(messages, "; "))
}

// ObjectFailure records one stored object that could not be deleted after
// its metadata record was committed as deleted. The object is orphaned.
type ObjectFailure struct {
	RecordID string `json:"record_id"`
	// Key is empty when listing the record's objects failed.
	Key string `json:"key,omitempty"`
	Err error  `json:"-"`
	// Message is Err rendered for transport.
	Message string `json:"error"`
}

// Result is the outcome of a deletion.
type Result struct {
	// FieldErrors is non-empty only when reauthentication failed, in which
	// case nothing was deleted.
	FieldErrors FieldErrors `json:"field_errors,omitempty"`
	// DeletedRecordIDs are the report ids whose metadata batch committed.
	DeletedRecordIDs []string `json:"deleted_record_ids,omitempty"`
	// DeletedObjects counts stored objects removed.
	DeletedObjects int `json:"deleted_objects"`
	// FailedObjects lists orphaned objects.
	FailedObjects []ObjectFailure `json:"failed_objects,omitempty"`
}

// Rejected reports whether reauthentication failed.
func (r *Result) Rejected() bool {
	return len(r.FieldErrors) > 0
}

// Partial reports whether metadata was deleted but some objects were not.
func (r *Result) Partial() bool {
	return len(r.FailedObjects) > 0
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Commandability/commandability-web-sub001/internal/domain/auth"
)

// RegisterCustomValidators registers the config-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	custom := map[string]validator.Func{
		"doc_driver":    validateDocDriver,
		"object_driver": validateObjectDriver,
		"argon2id_hash": validateArgon2idHash,
		"duration":      validateDuration,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func validateDocDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case DriverMemory, DriverSQLite:
		return true
	}
	return false
}

func validateObjectDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case DriverMemory, DriverFilesystem, DriverS3:
		return true
	}
	return false
}

func validateArgon2idHash(fl validator.FieldLevel) bool {
	return auth.IsSecretHash(fl.Field().String())
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDrivers(); err != nil {
		return err
	}

	if err := c.validateAccountUniqueness(); err != nil {
		return err
	}

	return nil
}

// validateDrivers checks the settings each selected driver needs.
func (c *Config) validateDrivers() error {
	if c.Documents.Driver == DriverSQLite && c.Documents.SQLitePath == "" {
		return errors.New("documents: sqlite driver requires sqlite_path")
	}
	switch c.Objects.Driver {
	case DriverFilesystem:
		if c.Objects.Dir == "" {
			return errors.New("objects: filesystem driver requires dir")
		}
	case DriverS3:
		if c.Objects.S3.Bucket == "" {
			return errors.New("objects: s3 driver requires s3.bucket")
		}
		hasKey := c.Objects.S3.AccessKeyID != ""
		hasSecret := c.Objects.S3.SecretAccessKey != ""
		if hasKey != hasSecret {
			return errors.New("objects: s3 access_key_id and secret_access_key must be set together")
		}
	}
	return nil
}

// validateAccountUniqueness rejects two accounts sharing an id or email.
func (c *Config) validateAccountUniqueness() error {
	ids := make(map[string]struct{}, len(c.Auth.Accounts))
	emails := make(map[string]struct{}, len(c.Auth.Accounts))
	for i, a := range c.Auth.Accounts {
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("auth.accounts[%d]: duplicate id: %s", i, a.ID)
		}
		ids[a.ID] = struct{}{}

		email := auth.NormalizeEmail(a.Email)
		if _, dup := emails[email]; dup {
			return fmt.Errorf("auth.accounts[%d]: duplicate email: %s", i, a.Email)
		}
		emails[email] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "excludes":
		return fmt.Sprintf("%s must not contain %q", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "doc_driver":
		return fmt.Sprintf("%s must be one of: memory sqlite", field)
	case "object_driver":
		return fmt.Sprintf("%s must be one of: memory filesystem s3", field)
	case "argon2id_hash":
		return fmt.Sprintf("%s must be an argon2id hash (generate with: commandability hash-secret)", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\" or \"5m\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

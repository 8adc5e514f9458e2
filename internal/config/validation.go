package config

import (
	"fmt"
	"strings"

	"steward/internal/backup"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// collect appends err when it is a ValidationError.
func (ve *ValidationErrors) collect(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositive checks that a numeric setting is above zero.
func ValidatePositive[T int | int64 | float64](field string, value T) error {
	if value <= 0 {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be greater than zero",
		}
	}
	return nil
}

// Validate checks every section and returns ValidationErrors listing all
// problems, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	errs.collect(ValidateOneOf("store.driver", c.Store.Driver, []string{"sqlite"}))
	errs.collect(ValidateRequired("store.dsn", c.Store.DSN))
	errs.collect(ValidateRequired("catalog.dir", c.Catalog.Dir))
	errs.collect(ValidatePositive("queue.workers", c.Queue.Workers))

	errs.collect(ValidateRequired("ssh.user", c.SSH.User))
	errs.collect(ValidateRequired("ssh.keyDir", c.SSH.KeyDir))
	if c.SSH.KnownHostsFile == "" && !c.SSH.Insecure {
		errs.Add("ssh.knownHostsFile", "is required unless ssh.insecure is set")
	}
	errs.collect(ValidatePositive("ssh.connectTimeout", int64(c.SSH.ConnectTimeout)))
	errs.collect(ValidatePositive("ssh.commandTimeout", int64(c.SSH.CommandTimeout)))

	if c.Backup.Enabled {
		if err := backup.ValidateSchedule(c.Backup.Schedule); err != nil {
			errs.Add("backup.schedule", err.Error(), c.Backup.Schedule)
		}
	}
	errs.collect(ValidateRequired("backup.saveDir", c.Backup.SaveDir))
	errs.collect(ValidatePositive("backup.defaultExpirationDays", c.Backup.DefaultExpirationDays))
	errs.collect(ValidatePositive("backup.defaultMinutesBetweenSave", c.Backup.DefaultMinutes))

	errs.collect(ValidateOneOf("runtime.engine", strings.ToLower(c.Runtime.Engine), []string{"docker", "podman"}))
	errs.collect(ValidateOneOf("logging.level", strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "warning", "error"}))
	errs.collect(ValidateOneOf("logging.format", c.Logging.Format, []string{"text", "json"}))

	if len(errs) > 0 {
		return errs
	}
	return nil
}

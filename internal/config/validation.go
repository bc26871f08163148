package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateRemote()...)
	errs = append(errs, c.validateOutput()...)

	if len(c.Jobs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "jobs",
			Message: "at least one job must be defined",
		})
	}
	for name, job := range c.Jobs {
		errs = append(errs, validateJob(name, &job)...)
	}

	errs = append(errs, c.validateProcessing()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateRemote() ValidationErrors {
	var errs ValidationErrors

	if c.Remote.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.base_url",
			Message: "is required",
		})
	} else if !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		errs = append(errs, ValidationError{
			Field:   "remote.base_url",
			Message: "must start with http:// or https://",
		})
	}
	if c.Remote.AccessToken == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.access_token",
			Message: "is required",
		})
	}
	if c.Remote.APIVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.api_version",
			Message: "is required",
		})
	}

	return errs
}

func (c *Config) validateOutput() ValidationErrors {
	var errs ValidationErrors

	switch c.Output.Sink {
	case "csv":
		if c.Output.Folder == "" {
			errs = append(errs, ValidationError{
				Field:   "output.folder",
				Message: "is required for the csv sink",
			})
		}
	case "database":
		db := c.Output.Database
		if db.Driver != "mysql" && db.Driver != "postgres" {
			errs = append(errs, ValidationError{
				Field:   "output.database.driver",
				Message: "must be mysql or postgres",
			})
		}
		if db.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "output.database.host",
				Message: "is required for the database sink",
			})
		}
		if db.Database == "" {
			errs = append(errs, ValidationError{
				Field:   "output.database.database",
				Message: "is required for the database sink",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "output.sink",
			Message: "must be csv or database",
		})
	}

	return errs
}

func validateJob(name string, job *JobConfig) ValidationErrors {
	var errs ValidationErrors
	prefix := fmt.Sprintf("jobs.%s", name)

	if len(job.Entities) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".entities",
			Message: "at least one entity is required",
		})
	}
	if job.RecordLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".record_limit",
			Message: "must not be negative",
		})
	}
	if job.IncludeRelated {
		if job.MaxDepth < 1 || job.MaxDepth > 3 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".max_depth",
				Message: "must be between 1 and 3 when include_related is set",
			})
		}
	}

	return errs
}

func (c *Config) validateProcessing() ValidationErrors {
	var errs ValidationErrors

	if c.Processing.PollIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "processing.poll_interval_seconds",
			Message: "must be positive",
		})
	}
	if c.Processing.MaxPollAttempts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "processing.max_poll_attempts",
			Message: "must be positive",
		})
	}
	if c.Processing.MaxConcurrentExports <= 0 {
		errs = append(errs, ValidationError{
			Field:   "processing.max_concurrent_exports",
			Message: "must be positive",
		})
	}
	if c.Processing.PredicateIDLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "processing.predicate_id_limit",
			Message: "must be positive",
		})
	}

	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of debug, info, warn, error",
		})
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be json or text",
		})
	}

	return errs
}

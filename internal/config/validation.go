// Package config provides configuration management for the TradeGuard control plane.
package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	v.RegisterValidation("environment", validateEnvironment)
	v.RegisterValidation("loglevel", validateLogLevel)
	v.RegisterValidation("bucketedges", validateBucketEdges)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateBucketEdges requires strictly increasing non-negative bucket edges
func validateBucketEdges(fl validator.FieldLevel) bool {
	edges, ok := fl.Field().Interface().([]float64)
	if !ok || len(edges) < 2 {
		return false
	}
	if edges[0] < 0 {
		return false
	}
	return sort.SliceIsSorted(edges, func(i, j int) bool { return edges[i] < edges[j] }) &&
		!hasDuplicateEdges(edges)
}

func hasDuplicateEdges(edges []float64) bool {
	for i := 1; i < len(edges); i++ {
		if edges[i] == edges[i-1] {
			return true
		}
	}
	return false
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	// Confidence tiers must be strictly ordered.
	if cfg.Learning.LowSampleFloor >= cfg.Learning.MediumSampleFloor {
		return fmt.Errorf("learning low_sample_floor must be below medium_sample_floor")
	}
	if cfg.Learning.MediumSampleFloor >= cfg.Learning.HighSampleFloor {
		return fmt.Errorf("learning medium_sample_floor must be below high_sample_floor")
	}

	// The catastrophic floors must sit past the ordinary triggers, or the
	// override would fire before the triggers it is meant to backstop.
	if cfg.Canary.CatastrophicDrawdown <= cfg.Canary.DrawdownFloor {
		return fmt.Errorf("canary catastrophic_drawdown must exceed drawdown_floor")
	}

	if cfg.IsProduction() {
		if cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
		}
		if cfg.Features.PersistentLedgerEnabled == false {
			return fmt.Errorf("production environment requires the persistent ledger")
		}
	}

	// Validate connection pool settings
	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "bucketedges":
			errMsg += fmt.Sprintf("- Field '%s' must be strictly increasing non-negative edges\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}

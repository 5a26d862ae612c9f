package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dash-gate/dashgate/internal/domain/access"
)

// Validate checks the configuration using struct tags plus the
// cross-field rules the tags cannot express. It runs once at startup;
// any failure aborts the server before a tool is served.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateClusterNames(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if c.Upstream.HTTPTimeout != "" {
		if _, err := time.ParseDuration(c.Upstream.HTTPTimeout); err != nil {
			return fmt.Errorf("upstream.http_timeout: %w", err)
		}
	}
	return nil
}

// validateClusterNames rejects duplicate cluster names; tools address
// clusters by name, so a duplicate would be ambiguous.
func (c *Config) validateClusterNames() error {
	seen := make(map[string]struct{}, len(c.Clusters))
	for i, cl := range c.Clusters {
		if _, dup := seen[cl.Name]; dup {
			return fmt.Errorf("clusters[%d]: duplicate cluster name %q", i, cl.Name)
		}
		seen[cl.Name] = struct{}{}
	}
	return nil
}

// validatePolicy runs the access-policy invariants, surfacing them at
// config load rather than first use.
func (c *Config) validatePolicy() error {
	policy := access.NewPolicy(c.Access.ReadTags, c.Access.WriteTags)
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("access: %w", err)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// actionable messages.
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

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

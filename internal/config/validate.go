package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidationError locates a configuration problem by file position or by key.
type ValidationError struct {
	FilePath string
	Line     int
	Column   int
	Message  string
	Field    string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s': %s", e.FilePath, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// checkYAMLSyntax parses a YAML config file before koanf sees it, so that
// syntax errors carry the file position. Missing and empty files pass.
func checkYAMLSyntax(path string) error {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return &ValidationError{FilePath: path, Message: err.Error()}
	case len(bytes.TrimSpace(data)) == 0:
		return nil
	}

	var node yaml.Node
	err = yaml.Unmarshal(data, &node)
	if err == nil {
		return nil
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{FilePath: path, Message: strings.Join(typeErr.Errors, "; ")}
	}
	line, column := yamlErrorPosition(err.Error())
	return &ValidationError{FilePath: path, Line: line, Column: column, Message: yamlErrorReason(err.Error())}
}

// ValidateConfigValues checks the merged configuration: struct tags first,
// then the URLs and addresses each selected gateway needs.
func ValidateConfigValues(cfg *Configuration, filePath string) error {
	if err := newValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &ValidationError{FilePath: filePath, Field: fieldPath(fieldErrs[0]), Message: describe(fieldErrs[0])}
		}
		return &ValidationError{FilePath: filePath, Message: err.Error()}
	}

	// A selected gateway needs somewhere to connect to
	required := []struct {
		selected bool
		field    string
		value    string
	}{
		{cfg.Source == "bitbucket", "bitbucket.url", cfg.Bitbucket.URL},
		{cfg.Source == "gitlab" || cfg.Tracker == "gitlab", "gitlab.url", cfg.GitLab.URL},
		{cfg.Tracker == "jira", "jira.url", cfg.Jira.URL},
		{cfg.Deployment == "spinnaker", "spinnaker.url", cfg.Spinnaker.URL},
		{cfg.Deployment == "file", "deployments_file", cfg.DeploymentsFile},
		{cfg.Cache.Backend == "redis", "cache.redis_addr", cfg.Cache.RedisAddr},
	}
	for _, r := range required {
		if r.selected && strings.TrimSpace(r.value) == "" {
			return &ValidationError{FilePath: filePath, Field: r.field, Message: "is required by the selected gateway"}
		}
	}

	if cfg.Tracker == "gitlab" && cfg.Source != "gitlab" {
		return &ValidationError{FilePath: filePath, Field: "tracker", Message: "gitlab tracker requires source: gitlab"}
	}

	return nil
}

// newValidator reports fields by their koanf key rather than the Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return toSnakeCase(field.Name)
		}
		return name
	})
	return v
}

// fieldPath turns "Configuration.aggregate.max_in_flight" into the dotted key.
func fieldPath(fieldErr validator.FieldError) string {
	ns := fieldErr.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fieldErr.Field()
}

// yamlErrorPosition reads the position from "yaml: line 5: ..." messages.
func yamlErrorPosition(msg string) (line, column int) {
	if n, _ := fmt.Sscanf(msg, "yaml: line %d: column %d:", &line, &column); n == 2 {
		return line, column
	}
	if n, _ := fmt.Sscanf(msg, "yaml: line %d:", &line); n == 1 {
		return line, 1
	}
	return 0, 0
}

// yamlErrorReason drops the "yaml: line N:" prefix.
func yamlErrorReason(msg string) string {
	if !strings.HasPrefix(msg, "yaml:") {
		return msg
	}
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[i+2:]
	}
	return msg
}

func describe(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fieldErr.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	case "url":
		return "must be an absolute URL"
	default:
		return fmt.Sprintf("failed validation: %s", fieldErr.Tag())
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

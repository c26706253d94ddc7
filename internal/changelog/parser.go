package changelog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoding names a serialized changelog format.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingYAML Encoding = "yaml"
)

// ValidationError represents a changelog invariant violation with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// EncodingForPath picks the encoding from a file extension, defaulting to JSON.
func EncodingForPath(path string) Encoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return EncodingYAML
	default:
		return EncodingJSON
	}
}

// Load reads, decodes and validates a serialized changelog file.
func Load(path string) (*Changelog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening changelog file: %w", err)
	}
	defer f.Close()

	return LoadFromReader(f, EncodingForPath(path))
}

// LoadFromReader decodes and validates a changelog from r.
func LoadFromReader(r io.Reader, enc Encoding) (*Changelog, error) {
	var c Changelog
	switch enc {
	case EncodingYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("parsing changelog YAML: %w", err)
		}
	case EncodingJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("parsing changelog JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported changelog encoding %q", enc)
	}

	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Encode writes c in the given encoding. JSON output is indented.
func Encode(c *Changelog, w io.Writer, enc Encoding) error {
	switch enc {
	case EncodingYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(c); err != nil {
			return fmt.Errorf("encoding changelog YAML: %w", err)
		}
		return e.Close()
	case EncodingJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		if err := e.Encode(c); err != nil {
			return fmt.Errorf("encoding changelog JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported changelog encoding %q", enc)
	}
}

// Validate checks the model invariants: unique revision IDs, change-requests
// referencing only commits in the changelog, at most one change-request per
// commit, and issue cross references that resolve in both directions.
func Validate(c *Changelog) error {
	if c.Range.StartRevision == "" || c.Range.EndRevision == "" {
		return &ValidationError{Field: "range", Message: "start and end revisions are required"}
	}

	revisions := make(map[string]struct{}, len(c.Commits))
	for i, commit := range c.Commits {
		if commit.RevisionID == "" {
			return &ValidationError{Field: fmt.Sprintf("commits[%d].revisionId", i), Message: "required field is empty"}
		}
		if _, dup := revisions[commit.RevisionID]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("commits[%d].revisionId", i),
				Message: fmt.Sprintf("duplicate revision %q", commit.RevisionID),
			}
		}
		revisions[commit.RevisionID] = struct{}{}
	}

	owner := make(map[string]ChangeRequestID)
	for id, cr := range c.ChangeRequests {
		field := fmt.Sprintf("changeRequests[%d]", int64(id))
		if cr.ID != id {
			return &ValidationError{Field: field + ".id", Message: fmt.Sprintf("id %d does not match key", int64(cr.ID))}
		}
		if len(cr.SourceRevisionIDs) == 0 {
			return &ValidationError{Field: field + ".sourceRevisionIds", Message: "change-request has no commits"}
		}
		for _, rev := range cr.SourceRevisionIDs {
			if _, ok := revisions[rev]; !ok {
				return &ValidationError{
					Field:   field + ".sourceRevisionIds",
					Message: fmt.Sprintf("revision %q is not in the changelog", rev),
				}
			}
			if other, taken := owner[rev]; taken {
				return &ValidationError{
					Field:   field + ".sourceRevisionIds",
					Message: fmt.Sprintf("revision %q also belongs to change-request %s", rev, other),
				}
			}
			owner[rev] = id
		}
		for _, key := range cr.IssueKeys {
			if _, ok := c.Issues[key]; !ok {
				return &ValidationError{Field: field + ".issueKeys", Message: fmt.Sprintf("issue %q is not in the changelog", key)}
			}
		}
	}

	for key, issue := range c.Issues {
		field := fmt.Sprintf("issues[%s]", key)
		if issue.Key != key {
			return &ValidationError{Field: field + ".key", Message: fmt.Sprintf("key %q does not match map key", issue.Key)}
		}
		for _, id := range issue.ChangeRequestIDs {
			if _, ok := c.ChangeRequests[id]; !ok {
				return &ValidationError{Field: field + ".changeRequestIds", Message: fmt.Sprintf("change-request %s is not in the changelog", id)}
			}
		}
	}

	return nil
}

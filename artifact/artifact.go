// Package artifact persists translated content documents and the raw model
// responses they were built from.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPersistence is returned when an artifact could not be written anywhere.
var ErrPersistence = errors.New("persistence failure")

// ErrInvalidName is returned for artifact names that are absolute, escape
// the store directory or are not .json files.
var ErrInvalidName = errors.New("invalid artifact name")

// Store writes named artifacts, replacing any previous version.
type Store interface {
	// PutArtifact writes content as an indented JSON document.
	PutArtifact(ctx context.Context, name string, content any) (Receipt, error)
	// PutRaw writes text verbatim.
	PutRaw(ctx context.Context, name, text string) (Receipt, error)
}

// Receipt tells the caller where an artifact ended up.
type Receipt struct {
	Path string
	// Fallback is set when the primary store failed and the artifact was
	// written to the local recovery directory instead.
	Fallback bool
}

// RawName returns the recovery artifact name for a production artifact:
// nl.json becomes nl.raw.json.
func RawName(name string) string {
	base := strings.TrimSuffix(name, ".json")
	base = strings.TrimSuffix(base, ".raw")
	return base + ".raw.json"
}

// ValidName checks that name is a relative .json path inside the store.
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("%w: %q leaves the content directory", ErrInvalidName, name)
		}
	}
	if !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("%w: %q is not a .json file", ErrInvalidName, name)
	}
	return nil
}

// Marshal renders content the way every store writes it: two-space
// indentation, no HTML escaping and a trailing newline.
func Marshal(content any) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(content); err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}
	return []byte(b.String()), nil
}

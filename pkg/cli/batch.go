package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"
)

// Batch describes a set of scripts to run on one scope.
type Batch struct {
	// Sources are loaded in order before any script runs.
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`

	// Scripts run concurrently on the async scope.
	Scripts []Script `yaml:"scripts" json:"scripts"`
}

// Script is one batch entry. Exactly one of Source or File is set.
type Script struct {
	Identifier string `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Source     string `yaml:"source,omitempty" json:"source,omitempty"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Name returns the identifier to run the script under.
func (s Script) Name() string {
	if s.Identifier != "" {
		return s.Identifier
	}
	return s.File
}

// Validate checks that every script has exactly one source.
func (b *Batch) Validate() error {
	if len(b.Scripts) == 0 {
		return errors.New("batch has no scripts")
	}
	for i, s := range b.Scripts {
		switch {
		case s.Source == "" && s.File == "":
			return fmt.Errorf("script %d: source or file is required", i)
		case s.Source != "" && s.File != "":
			return fmt.Errorf("script %d: source and file are exclusive", i)
		}
	}
	return nil
}

// LoadBatch loads a batch from a YAML or JSON file. A path of "-" reads stdin.
func LoadBatch(path string) (*Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	var raw any
	if err := ParseBatch(data, path, &raw); err != nil {
		return nil, err
	}
	resolved, err := resolvedBatchSchema()
	if err != nil {
		return nil, err
	}
	if err := resolved.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	var b Batch
	if err := ParseBatch(data, path, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// ParseBatch parses batch data based on file extension or content
func ParseBatch(data []byte, filename string, v any) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		// Try JSON first, then YAML
		if err := json.Unmarshal(data, v); err != nil {
			if err2 := yaml.Unmarshal(data, v); err2 != nil {
				return fmt.Errorf("failed to parse batch (tried JSON and YAML)")
			}
		}
	}

	return nil
}

// BatchSchema returns the JSON Schema of a batch file.
func BatchSchema() (*jsonschema.Schema, error) {
	return jsonschema.For[Batch](nil)
}

var resolvedBatchSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	s, err := BatchSchema()
	if err != nil {
		return nil, err
	}
	return s.Resolve(nil)
})

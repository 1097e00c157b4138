// Package policy holds the operator-supplied upload constraints: the
// script size bound, the set of accepted filename extensions, and the
// fallback display name.
package policy

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxScriptBytes  = 1 << 20
	DefaultFilenameDefault = "script.lua"
)

type Policy struct {
	// MaxScriptBytes bounds the decoded script body. Uploads above the
	// bound are rejected as client errors.
	MaxScriptBytes int64 `yaml:"max_script_bytes"`
	// AllowedExtensions lists accepted filename extensions including
	// the dot. Empty means any extension.
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// DefaultFilename is used when the caller supplies none.
	DefaultFilename string `yaml:"default_filename"`
}

// Default returns the policy used when no document is configured.
func Default() Policy {
	return Policy{
		MaxScriptBytes:  DefaultMaxScriptBytes,
		DefaultFilename: DefaultFilenameDefault,
	}
}

// Load reads and validates a policy document. An empty path yields the
// default policy. Omitted fields keep their defaults.
func Load(path string) (Policy, error) {
	p := Default()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	input, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(input, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.MaxScriptBytes < 1 {
		return fmt.Errorf("max_script_bytes must be >= 1, got %d", p.MaxScriptBytes)
	}
	if strings.TrimSpace(p.DefaultFilename) == "" {
		return fmt.Errorf("default_filename is required")
	}
	for i, ext := range p.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("allowed_extensions[%d] must start with a dot: %q", i, ext)
		}
	}
	return nil
}

// CheckFilename reports whether the filename's extension is accepted.
func (p Policy) CheckFilename(filename string) error {
	if len(p.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(path.Ext(filename))
	for _, allowed := range p.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("extension %q not allowed", ext)
}

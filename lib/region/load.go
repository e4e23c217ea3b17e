package region

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Load reads a policy table from a YAML file. Sections present in the file
// replace the corresponding sections of the default table wholesale; absent
// sections keep their defaults.
func Load(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read region policy: %w", err)
	}

	var override Policy
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Policy{}, fmt.Errorf("parse region policy %s: %w", path, err)
	}

	p := Default()
	if len(override.Mainland) > 0 {
		p.Mainland = override.Mainland
	}
	if len(override.Explicit) > 0 {
		p.Explicit = override.Explicit
	}
	if len(override.Unknown) > 0 {
		p.Unknown = override.Unknown
	}
	if len(override.Endpoints) > 0 {
		p.Endpoints = override.Endpoints
	}
	if len(override.Buckets) > 0 {
		p.Buckets = override.Buckets
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

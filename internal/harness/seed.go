package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/contentgraph/internal/service"
)

// SeedFile is a list of steps applied to a live database, typically to
// create the category tree and its grants.
type SeedFile struct {
	Steps []Step `yaml:"steps"`
}

// LoadSeed reads a seed file. Steps use the scenario step format without
// expect clauses.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(seed.Steps) == 0 {
		return nil, fmt.Errorf("invalid seed: steps list is required and must be non-empty")
	}
	for i, step := range seed.Steps {
		if err := validateStep(step); err != nil {
			return nil, fmt.Errorf("invalid seed: steps[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return nil, fmt.Errorf("invalid seed: steps[%d]: seed steps cannot have expect", i)
		}
		if step.Op == "advance" {
			return nil, fmt.Errorf("invalid seed: steps[%d]: advance is only available in scenarios", i)
		}
	}
	return &seed, nil
}

// Seed applies steps to svc in order and returns the names they bound.
// It stops at the first step that does not succeed.
func Seed(ctx context.Context, svc *service.Service, steps []Step) (map[string]int64, error) {
	h := &Harness{svc: svc, vars: map[string]int64{}}
	err := h.apply(ctx, "steps", steps)
	return h.vars, err
}

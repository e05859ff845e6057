package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a permission scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SuperUsers are the configured super-user ids.
	SuperUsers []int64 `yaml:"super_users,omitempty"`

	// Setup steps establish initial state and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Ref is an id written literally ("12") or as a binding ("$x").
type Ref string

// Binding returns the bound name and true for $refs.
func (r Ref) Binding() (string, bool) {
	name, ok := strings.CutPrefix(string(r), "$")
	return name, ok
}

// Step is one operation performed as an actor.
type Step struct {
	Op string `yaml:"op"`

	// As is the acting user id. Zero is anonymous.
	As int64 `yaml:"as"`

	// Super marks the actor as a super-user for this step only.
	Super bool `yaml:"super,omitempty"`

	// Bind names the id this step produces (created entity, comment).
	Bind string `yaml:"bind,omitempty"`

	// ID is the target: entity, parent, comment or listen scope.
	ID Ref `yaml:"id,omitempty"`

	Entity *EntitySpec `yaml:"entity,omitempty"`
	Search *SearchSpec `yaml:"search,omitempty"`

	// Text is comment content or a vote value.
	Text string `yaml:"text,omitempty"`

	// Types restricts listen to relation types.
	Types []string `yaml:"types,omitempty"`

	// After is the listen watermark.
	After Ref `yaml:"after,omitempty"`

	// Timeout bounds a listen.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Chains are chain elements for the chain op.
	Chains []string `yaml:"chains,omitempty"`

	// Advance moves the clock for the advance op.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Expect validates the outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// EntitySpec is the view a write step sends. With an id it is the whole
// new state of the entity.
type EntitySpec struct {
	ID          Ref               `yaml:"id,omitempty"`
	Type        string            `yaml:"type"`
	Name        string            `yaml:"name"`
	Content     string            `yaml:"content,omitempty"`
	Parent      Ref               `yaml:"parent,omitempty"`
	Permissions map[string]string `yaml:"permissions,omitempty"`
	Supers      []Ref             `yaml:"supers,omitempty"`
	Values      map[string]string `yaml:"values,omitempty"`
}

// SearchSpec is an entity search.
type SearchSpec struct {
	Type    string `yaml:"type,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Parents []Ref  `yaml:"parents,omitempty"`
	Limit   int    `yaml:"limit,omitempty"`
	Skip    int    `yaml:"skip,omitempty"`
	Sort    string `yaml:"sort,omitempty"`
	Reverse bool   `yaml:"reverse,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Case is "ok" or an apperr code such as FORBIDDEN.
	Case string `yaml:"case"`

	// IDs is the exact id list of a search, listen or comment list.
	IDs []Ref `yaml:"ids,omitempty"`

	// Result is a subset match against the step's result object.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is trace_contains, trace_order, trace_count or final_state.
	Type string `yaml:"type"`

	// Op is the operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// As filters trace_contains by actor.
	As *int64 `yaml:"as,omitempty"`

	// Case filters trace_contains and trace_count.
	Case string `yaml:"case,omitempty"`

	// Ops lists operations in order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the exact number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Entity is the entity to inspect (final_state).
	Entity Ref `yaml:"entity,omitempty"`

	// Expect holds expected fields (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// CaseOK is the expected case of a successful step.
const CaseOK = "ok"

var knownOps = map[string]bool{
	"write": true, "get": true, "delete": true, "search": true,
	"comment": true, "edit_comment": true, "delete_comment": true,
	"vote": true, "votes": true, "watch": true,
	"listen": true, "listeners": true, "chain": true, "advance": true,
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot have expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if !knownOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Op == "write" && step.Entity == nil {
		return fmt.Errorf("write needs an entity")
	}
	if step.Op == "chain" && len(step.Chains) == 0 {
		return fmt.Errorf("chain needs chains")
	}
	if step.Op == "advance" && step.Advance <= 0 {
		return fmt.Errorf("advance needs a positive duration")
	}
	for _, r := range []Ref{step.ID, step.After} {
		if err := checkRef(r); err != nil {
			return err
		}
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("expect: case is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("ops list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("entity is required for final_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func checkRef(r Ref) error {
	if r == "" {
		return nil
	}
	if name, ok := r.Binding(); ok {
		if name == "" {
			return fmt.Errorf("empty binding in %q", r)
		}
		return nil
	}
	if _, err := strconv.ParseInt(string(r), 10, 64); err != nil {
		return fmt.Errorf("id %q is neither a number nor a $binding", r)
	}
	return nil
}

package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			scenario, err := LoadScenario(p)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "public_create_read.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, map[string]int64{"root": 1, "x": 5, "p": 10}, first.Bindings)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong
description: "expects the wrong outcomes"
super_users: [99]
setup:
  - op: write
    as: 99
    bind: root
    entity: { type: category, name: root, permissions: { "0": r } }
flow:
  - op: get
    as: 1
    id: $root
    expect:
      case: NOT_FOUND
  - op: get
    as: 1
    id: $root
    expect:
      case: ok
      result: { name: other }
  - op: search
    as: 1
    expect:
      case: ok
      ids: []
assertions:
  - type: final_state
    entity: $root
    expect: { name: renamed }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected case NOT_FOUND, got ok")
	assert.Contains(t, result.Errors[1], `result field "name"`)
	assert.Contains(t, result.Errors[2], "expected ids [], got [1]")
	assert.Contains(t, result.Errors[3], `field "name"`)
}

func TestRun_SetupMustSucceed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_setup
description: "setup writes at the root without being a super-user"
setup:
  - op: write
    as: 1
    entity: { type: category, name: root }
flow:
  - op: get
    as: 1
    id: "1"
assertions:
  - type: trace_count
    op: get
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] write: got FORBIDDEN")
}

func TestRun_UnboundName(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unbound
description: "refers to a name nobody bound"
flow:
  - op: get
    as: 1
    id: $nobody
assertions:
  - type: trace_count
    op: get
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound name $nobody")
}

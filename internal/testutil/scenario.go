// Package testutil loads the end-to-end scenarios under testdata/scenarios.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Scenario is one scenario.json file: a command line, the policy it runs
// under and what it must produce.
type Scenario struct {
	Cmd    []string        `json:"cmd"`
	Policy *ScenarioPolicy `json:"policy,omitempty"`
	Expect ExpectedResult  `json:"expect"`
}

// ScenarioPolicy lists the capabilities a scenario runs with. A scenario
// without one runs under the default policy.
type ScenarioPolicy struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny,omitempty"`
}

// ExpectedResult describes the outcome of running a scenario. Empty fields
// are not checked.
type ExpectedResult struct {
	ExitCode         int             `json:"exitCode"`
	StdoutText       string          `json:"stdoutText,omitempty"`
	StdoutContains   string          `json:"stdoutContains,omitempty"`
	StderrContains   string          `json:"stderrContains,omitempty"`
	StderrJSONSubset json.RawMessage `json:"stderrJsonSubset,omitempty"`
}

// LoadScenario loads dir/scenario.json.
func LoadScenario(dir string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Join(dir, "scenario.json"))
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", dir)
	}
	if len(s.Cmd) < 2 {
		return nil, errors.Errorf("%s: cmd needs a command and a file", dir)
	}
	return &s, nil
}

// ListScenarios returns the directories under root holding a scenario.json,
// sorted by name.
func ListScenarios(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), "scenario.json")); err == nil {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ProgramPath returns the path of the program a scenario's cmd names.
func ProgramPath(dir string, s *Scenario) string {
	return filepath.Join(dir, s.Cmd[1])
}

// HasFlag reports whether the scenario's cmd contains flag.
func (s *Scenario) HasFlag(flag string) bool {
	for _, arg := range s.Cmd[2:] {
		if arg == flag {
			return true
		}
	}
	return false
}

// IsSubset reports whether every field of expected is present in actual
// with the same value. Arrays match by prefix.
func IsSubset(expected, actual any) bool {
	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range e {
			av, exists := a[k]
			if !exists || !IsSubset(ev, av) {
				return false
			}
		}
		return true
	case []any:
		a, ok := actual.([]any)
		if !ok || len(e) > len(a) {
			return false
		}
		for i, ev := range e {
			if !IsSubset(ev, a[i]) {
				return false
			}
		}
		return true
	default:
		return expected == actual
	}
}

// Package capabilities decides which effectful natives a run may use.
package capabilities

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileName is the policy file looked up in the working directory and then
// in the home directory.
const FileName = ".morph-policy.json"

// Policy defines which capabilities are allowed.
type Policy struct {
	Allowed map[string]bool
	// Source is the file the policy was read from, or "" for a built-in one.
	Source string
}

// PolicyFile is the JSON form of a policy.
type PolicyFile struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// IsAllowed reports whether cap is permitted. A nil policy allows nothing.
func (p *Policy) IsAllowed(cap string) bool {
	if p == nil || p.Allowed == nil {
		return false
	}
	return p.Allowed[cap]
}

// Names returns the allowed capabilities, sorted.
func (p *Policy) Names() []string {
	var names []string
	if p == nil {
		return names
	}
	for name, ok := range p.Allowed {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Default allows console output and denies file access.
func Default() *Policy {
	return &Policy{Allowed: map[string]bool{"io": true}}
}

// AllowAll permits every capability in caps.
func AllowAll(caps ...string) *Policy {
	allowed := make(map[string]bool, len(caps))
	for _, c := range caps {
		allowed[c] = true
	}
	return &Policy{Allowed: allowed}
}

// DenyAll denies every capability.
func DenyAll() *Policy {
	return &Policy{Allowed: map[string]bool{}}
}

// Load reads the policy from dir, then from the home directory. Without a
// policy file the Default policy applies. A policy file that exists but
// can not be read is an error.
func Load(dir string) (*Policy, error) {
	paths := []string{filepath.Join(dir, FileName)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, FileName))
	}
	for _, path := range paths {
		pf, err := loadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading policy %s", path)
		}
		p := build(pf)
		p.Source = path
		return p, nil
	}
	return Default(), nil
}

func loadFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PolicyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// build starts from the default policy. Allow adds, deny removes, and deny
// wins over allow.
func build(pf *PolicyFile) *Policy {
	p := Default()
	for _, c := range pf.Allow {
		p.Allowed[c] = true
	}
	for _, c := range pf.Deny {
		delete(p.Allowed, c)
	}
	return p
}

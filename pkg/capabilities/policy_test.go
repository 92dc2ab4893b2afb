package capabilities_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thomasrohde/morph/pkg/capabilities"
)

func writePolicy(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, capabilities.FileName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		project   string
		home      string
		wantIO    bool
		wantFS    bool
		noneFound bool
	}{
		{name: "default", wantIO: true, noneFound: true},
		{name: "project allows fs", project: `{"allow": ["fs"]}`, wantIO: true, wantFS: true},
		{name: "deny wins", project: `{"allow": ["fs"], "deny": ["fs", "io"]}`},
		{name: "home", home: `{"allow": ["fs"]}`, wantIO: true, wantFS: true},
		{name: "project before home", project: `{"deny": ["io"]}`, home: `{"allow": ["fs"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, home := t.TempDir(), t.TempDir()
			t.Setenv("HOME", home)
			t.Setenv("USERPROFILE", home)
			var want string
			if tt.home != "" {
				want = writePolicy(t, home, tt.home)
			}
			if tt.project != "" {
				want = writePolicy(t, project, tt.project)
			}

			p, err := capabilities.Load(project)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := p.IsAllowed("io"); got != tt.wantIO {
				t.Errorf("io allowed = %v, want %v", got, tt.wantIO)
			}
			if got := p.IsAllowed("fs"); got != tt.wantFS {
				t.Errorf("fs allowed = %v, want %v", got, tt.wantFS)
			}
			if tt.noneFound {
				want = ""
			}
			if p.Source != want {
				t.Errorf("source = %q, want %q", p.Source, want)
			}
		})
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	project := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	writePolicy(t, project, `{"allow": `)
	if _, err := capabilities.Load(project); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNilPolicy(t *testing.T) {
	var p *capabilities.Policy
	if p.IsAllowed("io") {
		t.Error("nil policy allowed io")
	}
	if got := capabilities.AllowAll("io", "fs").Names(); len(got) != 2 || got[0] != "fs" {
		t.Errorf("Names() = %v", got)
	}
}

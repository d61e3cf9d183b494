package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const registerScenario = `
id: TC-REG-001
name: Register and deregister
tags: [registration, smoke]
timeout: 20s
steps:
  - action: listen
    params:
      timeout: 10s
  - action: expect_request
    params:
      kind: Register
    expect:
      endpoint: urn:dev:os:0023C7-000001
  - action: respond
    params:
      code: "2.01"
      location: /rd/demo
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(registerScenario))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if sc.ID != "TC-REG-001" {
		t.Errorf("ID: got %q, want %q", sc.ID, "TC-REG-001")
	}
	if len(sc.Steps) != 3 {
		t.Fatalf("steps: got %d, want 3", len(sc.Steps))
	}
	if sc.Steps[1].Params["kind"] != "Register" {
		t.Errorf("step 2 kind: got %v", sc.Steps[1].Params["kind"])
	}
	if sc.Steps[2].Params["code"] != "2.01" {
		t.Errorf("step 3 code: got %v", sc.Steps[2].Params["code"])
	}
	if len(sc.Tags) != 2 || sc.Timeout != "20s" {
		t.Errorf("tags/timeout: got %v %q", sc.Tags, sc.Timeout)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "name: x\nsteps:\n  - action: listen\n"},
		{"no steps", "id: TC-1\n"},
		{"step without action", "id: TC-1\nsteps:\n  - params: {a: 1}\n"},
		{"invalid yaml", "id: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("got %v, want *LoadError", err)
			}
		})
	}
}

func TestParseFileSuiteAndMultiDocument(t *testing.T) {
	suite := `
name: observe
scenarios:
  - id: TC-OBS-001
    steps:
      - action: send_request
  - id: TC-OBS-002
    steps:
      - action: send_request
`
	cases, err := ParseFile([]byte(suite))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(cases) != 2 || cases[1].ID != "TC-OBS-002" {
		t.Fatalf("suite: got %d cases", len(cases))
	}

	multi := registerScenario + "\n---\nid: TC-REG-002\nsteps:\n  - action: listen\n"
	cases, err = ParseFile([]byte(multi))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != "TC-REG-001" || cases[1].ID != "TC-REG-002" {
		t.Fatalf("multi-document: got %d cases", len(cases))
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("registration.yaml", registerScenario)
	write("observe.yml", "id: TC-OBS-001\nsteps:\n  - action: send_request\n")
	write("notes.txt", "not a scenario")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "block.yaml"),
		[]byte("id: TC-BLK-001\nsteps:\n  - action: expect_request\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(cases) != 2 {
		t.Errorf("LoadDirectory: got %d cases, want 2", len(cases))
	}

	cases, err = LoadDirectoryRecursive(dir)
	if err != nil {
		t.Fatalf("LoadDirectoryRecursive: %v", err)
	}
	if len(cases) != 3 {
		t.Errorf("LoadDirectoryRecursive: got %d cases, want 3", len(cases))
	}

	cases, err = LoadDirectoryWithFilter(dir, "regis*")
	if err != nil {
		t.Fatalf("LoadDirectoryWithFilter: %v", err)
	}
	if len(cases) != 1 || cases[0].ID != "TC-REG-001" {
		t.Errorf("filtered: got %d cases", len(cases))
	}
}

func TestLoadFileReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("name: no id\nsteps:\n  - action: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want *LoadError", err)
	}
	if le.File != path {
		t.Errorf("File: got %q, want %q", le.File, path)
	}
}

func TestFilters(t *testing.T) {
	cases := []*Scenario{
		{ID: "TC-REG-001", Name: "register", Tags: []string{"registration"}},
		{ID: "TC-OBS-001", Name: "observe", Tags: []string{"observe", "slow"}},
		{ID: "TC-BLK-001", Name: "block download", Tags: []string{"blockwise"}},
	}
	if got := FilterByPattern(cases, "TC-REG-*"); len(got) != 1 {
		t.Errorf("pattern prefix: got %d", len(got))
	}
	if got := FilterByPattern(cases, "*download*,TC-OBS-001"); len(got) != 2 {
		t.Errorf("pattern list: got %d", len(got))
	}
	if got := FilterByPattern(cases, ""); len(got) != 3 {
		t.Errorf("empty pattern: got %d", len(got))
	}
	if got := FilterByTags(cases, "observe,blockwise"); len(got) != 2 {
		t.Errorf("tags: got %d", len(got))
	}
	if got := FilterByExcludeTags(cases, "slow"); len(got) != 2 {
		t.Errorf("exclude tags: got %d", len(got))
	}
}

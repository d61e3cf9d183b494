package loader

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseScenario parses a scenario from YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, yamlLoadError("failed to parse YAML", err)
	}
	if err := validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ParseFile parses YAML that holds either a single scenario or a suite
// (a document with a top-level "scenarios" list). Multi-document files
// are accepted; each document is one scenario or suite.
func ParseFile(data []byte) ([]*Scenario, error) {
	var out []*Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, yamlLoadError("failed to parse YAML", err)
		}
		if isSuite(&node) {
			var s Suite
			if err := node.Decode(&s); err != nil {
				return nil, yamlLoadError("failed to decode suite", err)
			}
			for _, sc := range s.Scenarios {
				if err := validate(sc); err != nil {
					return nil, err
				}
				out = append(out, sc)
			}
			continue
		}
		var sc Scenario
		if err := node.Decode(&sc); err != nil {
			return nil, yamlLoadError("failed to decode scenario", err)
		}
		if err := validate(&sc); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	if len(out) == 0 {
		return nil, &LoadError{Message: "no scenarios in document"}
	}
	return out, nil
}

// LoadFile loads all scenarios from one file.
func LoadFile(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cases, err := ParseFile(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return cases, nil
}

// LoadDirectory loads all scenarios from a directory.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*Scenario, error) {
	return LoadDirectoryWithFilter(dir, "")
}

// LoadDirectoryWithFilter loads scenarios from the files of dir whose
// name without extension matches one of the comma-separated glob
// patterns in files. An empty filter loads every file.
func LoadDirectoryWithFilter(dir, files string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}

	var cases []*Scenario
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if !matchesFileFilter(entry.Name(), files) {
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}
	return cases, nil
}

// LoadDirectoryRecursive loads all scenarios from a directory and subdirectories.
func LoadDirectoryRecursive(dir string) ([]*Scenario, error) {
	var cases []*Scenario
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		loaded, err := LoadFile(path)
		if err != nil {
			return err
		}
		cases = append(cases, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}

func validate(sc *Scenario) error {
	if sc.ID == "" {
		return &LoadError{Message: "scenario ID is required"}
	}
	if len(sc.Steps) == 0 {
		return &LoadError{Message: "scenario " + sc.ID + " must have at least one step"}
	}
	for i, st := range sc.Steps {
		if st.Action == "" {
			return &LoadError{Message: "scenario " + sc.ID + ": step " + strconv.Itoa(i+1) + " has no action"}
		}
	}
	return nil
}

func isSuite(node *yaml.Node) bool {
	doc := node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "scenarios" {
			return true
		}
	}
	return false
}

func yamlLoadError(msg string, err error) *LoadError {
	le := &LoadError{Message: msg, Cause: err}
	var te *yaml.TypeError
	if errors.As(err, &te) {
		le.Message = msg + " (type mismatch)"
	}
	return le
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func matchesFileFilter(name, files string) bool {
	if strings.TrimSpace(files) == "" {
		return true
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, pattern := range strings.Split(files, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := filepath.Match(pattern, stem); ok {
			return true
		}
	}
	return false
}

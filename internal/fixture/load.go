package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/adderprobe/internal/protocol"
)

// SuitesKey marks a fixture file holding step suites instead of a test set.
const SuitesKey = "suites"

// Set is the content of fixture files: step suites and test-set cases.
type Set struct {
	Suites   []Suite
	TestSets []Case
}

// Cases returns the steps of every suite, sorted by suite name, followed by
// the test sets in load order.
func (s Set) Cases() ([]Case, error) {
	cases, err := Cases(s.Suites)
	if err != nil {
		return nil, err
	}
	return append(cases, s.TestSets...), nil
}

// Load reads fixture files. A file whose top-level object has a "suites" key
// holds step suites; any other file is a test set.
func Load(paths ...string) (Set, error) {
	var set Set
	for _, path := range paths {
		doc, err := ReadDocument(path)
		if err != nil {
			return Set{}, err
		}
		if raw, ok := doc[SuitesKey]; ok {
			suites, err := parseSuites(path, raw)
			if err != nil {
				return Set{}, err
			}
			set.Suites = append(set.Suites, suites...)
			continue
		}
		c, err := TestSetCase(path, doc)
		if err != nil {
			return Set{}, err
		}
		set.TestSets = append(set.TestSets, c)
	}
	return set, nil
}

// ReadDocument reads a JSON or YAML file (by extension) as a single object.
func ReadDocument(path string) (protocol.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if v, err = normalizeYAML(raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := protocol.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse %s: top level must be an object", path)
	}
	return protocol.Document(obj), nil
}

func parseSuites(path string, raw any) ([]Suite, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %q must map suite names to step lists", path, SuitesKey)
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	suites := make([]Suite, 0, len(m))
	for _, name := range names {
		list, ok := m[name].([]any)
		if !ok {
			return nil, fmt.Errorf("%s: suite %q must be a list of steps", path, name)
		}
		s := Suite{Name: name}
		for i, item := range list {
			step, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: suite %q step %d must be an object", path, name, i+1)
			}
			s.Steps = append(s.Steps, protocol.Document(step))
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// normalizeYAML converts yaml.v2 maps into JSON-compatible maps.
func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			nv, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			nv, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case int:
		return json.Number(strconv.Itoa(t)), nil
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(t, 10)), nil
	}
	return v, nil
}

// Package fixture builds the cases a run submits to the helper.
//
// Two fixture shapes exist. A step suite is a named list of small requests,
// each declaring with "test.success" whether the helper must accept it. A
// test set is a single full request that must succeed and whose entities
// are then looked up in the store.
package fixture

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/wire"
)

// Metadata keys read by the harness and never sent to the helper.
const (
	MetaPrefix  = "test."
	MetaName    = "test.name"
	MetaSuccess = "test.success"
)

// Kind tells how a case was defined.
type Kind int

const (
	KindStep Kind = iota
	KindTestSet
)

// Case is one request submitted to the helper.
type Case struct {
	Kind Kind
	// Suite is the suite name for steps, the file path for test sets.
	Suite string
	Name  string
	// Expect is the success value the response must carry.
	Expect bool
	// Document is the wire form, metadata already stripped.
	Document protocol.Document
	// Request is the typed view of Document. It is nil when the document
	// is deliberately ill-typed, e.g. "artworks" given as an object.
	Request *protocol.Request
}

// Description is the TAP description of the response assertion.
func (c Case) Description() string {
	if c.Kind == KindTestSet {
		return "Web-ext adder for " + c.Suite
	}
	return c.Suite + " : " + c.Name
}

// CheckStorage reports whether the case's entities must be found in the store.
func (c Case) CheckStorage() bool {
	return c.Expect && c.Kind == KindTestSet && c.Request != nil
}

// Suite is a named, ordered list of step definitions.
type Suite struct {
	Name  string
	Steps []protocol.Document
}

// Strip returns a copy of doc without harness metadata keys.
func Strip(doc protocol.Document) protocol.Document {
	out := make(protocol.Document, len(doc))
	for k, v := range doc {
		if !strings.HasPrefix(k, MetaPrefix) {
			out[k] = v
		}
	}
	return out
}

// Cases expands the suites into cases, suites in sorted name order and
// steps in declaration order. "platform" defaults to the suite name.
func Cases(suites []Suite) ([]Case, error) {
	sorted := append([]Suite(nil), suites...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var cases []Case
	for _, s := range sorted {
		for i, step := range s.Steps {
			c, err := stepCase(s.Name, i, step)
			if err != nil {
				return nil, err
			}
			cases = append(cases, c)
		}
	}
	return cases, nil
}

func stepCase(suite string, index int, step protocol.Document) (Case, error) {
	name, _ := step[MetaName].(string)
	if name == "" {
		name = fmt.Sprintf("step %d", index+1)
	}
	expect, ok := step[MetaSuccess].(bool)
	if !ok {
		return Case{}, fmt.Errorf("suite %q step %q: %q must be a boolean", suite, name, MetaSuccess)
	}

	doc := Strip(step)
	if _, ok := doc["platform"]; !ok {
		doc["platform"] = suite
	}
	return Case{
		Kind:     KindStep,
		Suite:    suite,
		Name:     name,
		Expect:   expect,
		Document: doc,
		Request:  typed(doc),
	}, nil
}

// TestSetCase turns a full request into a case expected to succeed.
// A "test.success" key may override the expectation.
func TestSetCase(path string, doc protocol.Document) (Case, error) {
	if _, ok := doc["platform"].(string); !ok {
		return Case{}, fmt.Errorf("test set %s: missing string \"platform\"", path)
	}
	expect := true
	if v, ok := doc[MetaSuccess]; ok {
		b, ok := v.(bool)
		if !ok {
			return Case{}, fmt.Errorf("test set %s: %q must be a boolean", path, MetaSuccess)
		}
		expect = b
	}
	name, _ := doc[MetaName].(string)
	if name == "" {
		name = path
	}

	stripped := Strip(doc)
	req, err := protocol.ParseRequest(stripped)
	if err != nil {
		return Case{}, fmt.Errorf("test set %s: %w", path, err)
	}
	return Case{
		Kind:     KindTestSet,
		Suite:    path,
		Name:     name,
		Expect:   expect,
		Document: stripped,
		Request:  &req,
	}, nil
}

func typed(doc protocol.Document) *protocol.Request {
	req, err := protocol.ParseRequest(doc)
	if err != nil {
		return nil
	}
	return &req
}

// Documents returns the wire documents of cases, in order.
func Documents(cases []Case) []protocol.Document {
	docs := make([]protocol.Document, len(cases))
	for i, c := range cases {
		docs[i] = c.Document
	}
	return docs
}

// WritePayload writes one frame per case. With terminator set, a
// zero-length frame follows the last case.
func WritePayload(w io.Writer, cases []Case, terminator bool) (int64, error) {
	var total int64
	for _, c := range cases {
		frame, err := wire.Encode(c.Document)
		if err != nil {
			return total, fmt.Errorf("%s: %w", c.Description(), err)
		}
		n, err := w.Write(frame)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	if terminator {
		n, err := w.Write(wire.Terminator())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Package normalize maps raw address state names and codes onto canonical
// state entries.
package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed states.yaml
var defaultStates []byte

// Entry is a canonical state. Code is empty when the entry has none.
type Entry struct {
	Name    string   `yaml:"name"`
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

type document struct {
	States []Entry `yaml:"states"`
}

// Result is the normalized pair; nil means unknown.
type Result struct {
	State     *string
	StateCode *string
}

// StateTable is an immutable lookup from lowercase name, code or alias to its entry.
// Safe for concurrent use.
type StateTable struct {
	byKey map[string]Entry
}

// Default returns the table built from the embedded reference data
func Default() (*StateTable, error) {
	return Parse(defaultStates)
}

// LoadFile builds a table from a YAML file on disk
func LoadFile(path string) (*StateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state table: %w", err)
	}
	return Parse(raw)
}

// Parse builds a table from YAML
func Parse(raw []byte) (*StateTable, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state table: %w", err)
	}
	return NewStateTable(doc.States)
}

// NewStateTable indexes entries by name, code and aliases. Duplicate keys
// pointing at different entries are rejected.
func NewStateTable(entries []Entry) (*StateTable, error) {
	t := &StateTable{byKey: make(map[string]Entry, len(entries)*3)}
	for _, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("state entry without name (code %q)", e.Code)
		}
		keys := append([]string{e.Name, e.Code}, e.Aliases...)
		for _, k := range keys {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if prev, ok := t.byKey[k]; ok && prev.Name != e.Name {
				return nil, fmt.Errorf("state key %q maps to both %q and %q", k, prev.Name, e.Name)
			}
			t.byKey[k] = e
		}
	}
	return t, nil
}

// Len returns the number of indexed keys
func (t *StateTable) Len() int {
	return len(t.byKey)
}

// Lookup finds the entry for a raw name or code
func (t *StateTable) Lookup(raw string) (Entry, bool) {
	e, ok := t.byKey[strings.ToLower(strings.TrimSpace(raw))]
	return e, ok
}

// Normalize resolves a raw state and code. A matching code wins over the name;
// an unknown name is title-cased and keeps the raw code uppercased. Empty
// strings count as absent. pincode is accepted for a later postal-prefix
// fallback and is currently ignored.
func (t *StateTable) Normalize(rawState, rawCode, pincode string) Result {
	code := strings.TrimSpace(rawCode)
	if code != "" {
		if e, ok := t.Lookup(code); ok {
			return Result{State: strPtr(e.Name), StateCode: optional(e.Code)}
		}
	}

	if rawState == "" {
		return Result{}
	}

	s := strings.TrimSpace(rawState)
	if e, ok := t.Lookup(s); ok {
		return Result{State: strPtr(e.Name), StateCode: optional(e.Code)}
	}

	return Result{
		State:     optional(titleCase(s)),
		StateCode: optional(strings.ToUpper(code)),
	}
}

func titleCase(s string) string {
	caser := cases.Title(language.Und)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}

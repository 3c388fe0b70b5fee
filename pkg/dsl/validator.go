// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/alexchoi/bqdrift/pkg/bqerr"
)

//go:embed schema.json
var declarationSchemaJSON string

// Validator checks a declaration for structural validity (via JSON Schema,
// against the raw YAML before resolution) and semantic validity (via
// hand-rolled invariant checks over the resolved QueryDef, which a generic
// schema can't express: cross-field ordering constraints).
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded declaration schema once.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bqdrift://query-declaration.json", strings.NewReader(declarationSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add declaration schema resource: %w", err)
	}
	sch, err := compiler.Compile("bqdrift://query-declaration.json")
	if err != nil {
		return nil, fmt.Errorf("compile declaration schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// ValidateRaw structurally validates the post-preprocess YAML text against
// the declaration JSON Schema, before any resolution happens.
func (v *Validator) ValidateRaw(yamlText string) error {
	var doc any
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return &bqerr.DSLParseFailure{Err: err}
	}
	return v.Validate(doc)
}

// Validate runs the compiled declaration schema against an already-decoded
// document (a map[string]any / []any / scalar tree, as produced by either
// encoding/json or yaml.v3 unmarshaling into `any`).
func (v *Validator) Validate(doc any) error {
	if err := v.schema.Validate(doc); err != nil {
		return &bqerr.ValidationFailureError{Issues: []string{err.Error()}}
	}
	return nil
}

// ValidateQueryDef checks the cross-field ordering invariants a JSON Schema
// cannot express: versions sorted with no duplicate effective_from dates,
// and each version's revisions strictly increasing and all after the
// version's own effective_from.
func ValidateQueryDef(q QueryDef) []string {
	var issues []string

	for i := 1; i < len(q.Versions); i++ {
		prev, cur := q.Versions[i-1], q.Versions[i]
		if cur.EffectiveFrom.Before(prev.EffectiveFrom) {
			issues = append(issues, fmt.Sprintf("query %q: version %d.effective_from precedes version %d.effective_from", q.Name, cur.Version, prev.Version))
		}
		if cur.EffectiveFrom.Equal(prev.EffectiveFrom) {
			issues = append(issues, fmt.Sprintf("query %q: versions %d and %d share effective_from", q.Name, prev.Version, cur.Version))
		}
	}

	for _, v := range q.Versions {
		last := v.EffectiveFrom
		for _, rev := range v.Revisions {
			if !rev.EffectiveFrom.After(last) {
				issues = append(issues, fmt.Sprintf("query %q: version %d revision %d.effective_from must strictly increase past %s", q.Name, v.Version, rev.Revision, last.Format("2006-01-02")))
			}
			last = rev.EffectiveFrom
		}
	}

	return issues
}

// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/alexchoi/bqdrift/pkg/schema"
)

// SchemaRefKind discriminates the three ways a version can declare its
// schema.
type SchemaRefKind int

const (
	SchemaInline SchemaRefKind = iota
	SchemaReference
	SchemaExtended
)

// ExtendedSchema builds a schema from a referenced base version plus a
// remove/modify/add delta, applied in that order.
type ExtendedSchema struct {
	Base   string         `yaml:"base"`
	Add    []schema.Field `yaml:"add,omitempty"`
	Remove []string       `yaml:"remove,omitempty"`
	Modify []schema.Field `yaml:"modify,omitempty"`
}

// SchemaRef is the tagged union a version's `schema` field parses into:
// an inline field list, a `${{ versions.N.schema }}` reference string, or
// an extended delta object.
type SchemaRef struct {
	Kind      SchemaRefKind
	Inline    []schema.Field
	Reference string
	Extended  *ExtendedSchema
}

// UnmarshalYAML dispatches on the node's kind: a sequence is an inline field
// list, a scalar is a reference string, and a mapping with a "base" key is
// an extended delta.
func (s *SchemaRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var fields []schema.Field
		if err := node.Decode(&fields); err != nil {
			return fmt.Errorf("decode inline schema: %w", err)
		}
		s.Kind = SchemaInline
		s.Inline = fields
		return nil

	case yaml.ScalarNode:
		var ref string
		if err := node.Decode(&ref); err != nil {
			return fmt.Errorf("decode schema reference: %w", err)
		}
		s.Kind = SchemaReference
		s.Reference = ref
		return nil

	case yaml.MappingNode:
		var ext ExtendedSchema
		if err := node.Decode(&ext); err != nil {
			return fmt.Errorf("decode extended schema: %w", err)
		}
		s.Kind = SchemaExtended
		s.Extended = &ext
		return nil

	default:
		return fmt.Errorf("schema: unsupported YAML node kind %v", node.Kind)
	}
}

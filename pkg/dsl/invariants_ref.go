// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/alexchoi/bqdrift/pkg/invariant"
)

// InvariantsRefKind discriminates the three ways a version can declare its
// invariants, mirroring SchemaRefKind.
type InvariantsRefKind int

const (
	InvariantsInline InvariantsRefKind = iota
	InvariantsReference
	InvariantsExtended
)

// InvariantsRemove names invariants to drop from each list by name.
type InvariantsRemove struct {
	Before []string `yaml:"before,omitempty"`
	After  []string `yaml:"after,omitempty"`
}

// InvariantsAddOrModify carries full invariant definitions to add or to
// substitute by name.
type InvariantsAddOrModify struct {
	Before []invariant.Def `yaml:"before,omitempty"`
	After  []invariant.Def `yaml:"after,omitempty"`
}

// ExtendedInvariants builds an invariant declaration from a referenced base
// version plus a remove/modify/add delta, applied in that order.
type ExtendedInvariants struct {
	Base   string                 `yaml:"base"`
	Add    *InvariantsAddOrModify `yaml:"add,omitempty"`
	Remove *InvariantsRemove      `yaml:"remove,omitempty"`
	Modify *InvariantsAddOrModify `yaml:"modify,omitempty"`
}

// InvariantsRef is the tagged union a version's `invariants` field parses
// into: an inline declaration, a `${{ versions.N.invariants }}` reference
// string, or an extended delta object.
type InvariantsRef struct {
	Kind      InvariantsRefKind
	Inline    invariant.Declaration
	Reference string
	Extended  *ExtendedInvariants
}

// UnmarshalYAML dispatches on the node's kind: a scalar is a reference
// string, and a mapping is either an inline {before,after} declaration or an
// extended delta, distinguished by the presence of a "base" key. Sequence
// nodes are rejected (invariants has no array form).
func (iv *InvariantsRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var ref string
		if err := node.Decode(&ref); err != nil {
			return fmt.Errorf("decode invariants reference: %w", err)
		}
		iv.Kind = InvariantsReference
		iv.Reference = ref
		return nil

	case yaml.MappingNode:
		if hasKey(node, "base") {
			var ext ExtendedInvariants
			if err := node.Decode(&ext); err != nil {
				return fmt.Errorf("decode extended invariants: %w", err)
			}
			iv.Kind = InvariantsExtended
			iv.Extended = &ext
			return nil
		}
		var decl invariant.Declaration
		if err := node.Decode(&decl); err != nil {
			return fmt.Errorf("decode inline invariants: %w", err)
		}
		iv.Kind = InvariantsInline
		iv.Inline = decl
		return nil

	default:
		return fmt.Errorf("invariants: unsupported YAML node kind %v", node.Kind)
	}
}

// hasKey reports whether a YAML mapping node declares the given top-level
// key, walking key/value pairs directly rather than decoding into a map (so
// no allocation is needed just to check presence).
func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

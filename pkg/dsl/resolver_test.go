// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"testing"

	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
)

func TestResolveSchemaInline(t *testing.T) {
	r := NewResolver()
	ref := SchemaRef{Kind: SchemaInline, Inline: []schema.Field{{Name: "id", Type: schema.TypeString, Mode: schema.ModeRequired}}}

	s, err := r.ResolveSchema(ref, map[int]schema.Schema{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Fields) != 1 || s.Fields[0].Name != "id" {
		t.Errorf("unexpected schema: %+v", s)
	}
}

func TestResolveSchemaReference(t *testing.T) {
	r := NewResolver()
	base := schema.FromFields([]schema.Field{{Name: "id", Type: schema.TypeString, Mode: schema.ModeRequired}})
	resolved := map[int]schema.Schema{1: base}

	ref := SchemaRef{Kind: SchemaReference, Reference: "${{ versions.1.schema }}"}
	s, err := r.ResolveSchema(ref, resolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Fields) != 1 {
		t.Errorf("expected the base schema to be reused, got %+v", s)
	}
}

func TestResolveSchemaReferenceForwardRefFails(t *testing.T) {
	r := NewResolver()
	ref := SchemaRef{Kind: SchemaReference, Reference: "${{ versions.2.schema }}"}

	_, err := r.ResolveSchema(ref, map[int]schema.Schema{1: {}})
	if err == nil {
		t.Fatal("expected an error resolving a forward reference")
	}
}

func TestResolveExtendedSchemaAppliesRemoveModifyAddInOrder(t *testing.T) {
	r := NewResolver()
	base := schema.FromFields([]schema.Field{
		{Name: "id", Type: schema.TypeString, Mode: schema.ModeRequired},
		{Name: "legacy_flag", Type: schema.TypeBool, Mode: schema.ModeNullable},
		{Name: "amount", Type: schema.TypeFloat64, Mode: schema.ModeNullable},
	})
	resolved := map[int]schema.Schema{1: base}

	ref := SchemaRef{
		Kind: SchemaExtended,
		Extended: &ExtendedSchema{
			Base:   "${{ versions.1.schema }}",
			Remove: []string{"legacy_flag"},
			Modify: []schema.Field{{Name: "amount", Type: schema.TypeNumeric, Mode: schema.ModeRequired}},
			Add:    []schema.Field{{Name: "currency", Type: schema.TypeString, Mode: schema.ModeRequired}},
		},
	}

	s, err := r.ResolveSchema(ref, resolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Fields) != 3 {
		t.Fatalf("expected 3 fields after remove+add, got %d: %+v", len(s.Fields), s.Fields)
	}
	if s.Fields[0].Name != "id" || s.Fields[1].Name != "amount" || s.Fields[1].Type != schema.TypeNumeric || s.Fields[2].Name != "currency" {
		t.Errorf("unexpected field order/content: %+v", s.Fields)
	}
}

func TestResolveInvariantsExtendedRemoveModifyAdd(t *testing.T) {
	r := NewResolver()
	min := int64(1)
	base := invariant.Declaration{
		Before: []invariant.Def{
			{Name: "has_rows", Severity: invariant.SeverityError, Check: invariant.Check{Kind: invariant.CheckRowCountBounds, Min: &min}},
			{Name: "old_check", Severity: invariant.SeverityWarning, Check: invariant.Check{Kind: invariant.CheckCustomSQL, Predicate: "1=1"}},
		},
	}
	resolved := map[int]invariant.Declaration{1: base}

	newMin := int64(100)
	ref := &InvariantsRef{
		Kind: InvariantsExtended,
		Extended: &ExtendedInvariants{
			Base:   "${{ versions.1.invariants }}",
			Remove: &InvariantsRemove{Before: []string{"old_check"}},
			Modify: &InvariantsAddOrModify{
				Before: []invariant.Def{{Name: "has_rows", Severity: invariant.SeverityError, Check: invariant.Check{Kind: invariant.CheckRowCountBounds, Min: &newMin}}},
			},
			Add: &InvariantsAddOrModify{
				After: []invariant.Def{{Name: "no_nulls", Severity: invariant.SeverityError, Check: invariant.Check{Kind: invariant.CheckNonNullColumn, Column: "id"}}},
			},
		},
	}

	decl, err := r.ResolveInvariants(ref, resolved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decl.Before) != 1 || decl.Before[0].Name != "has_rows" || *decl.Before[0].Check.Min != 100 {
		t.Errorf("expected old_check removed and has_rows modified, got %+v", decl.Before)
	}
	if len(decl.After) != 1 || decl.After[0].Name != "no_nulls" {
		t.Errorf("expected no_nulls added to after list, got %+v", decl.After)
	}
}

func TestResolveInvariantsRejectsMisconfiguredCheck(t *testing.T) {
	r := NewResolver()
	ref := &InvariantsRef{
		Kind: InvariantsInline,
		Inline: invariant.Declaration{
			Before: []invariant.Def{{Name: "broken", Severity: invariant.SeverityError, Check: invariant.Check{Kind: invariant.CheckNonNullColumn}}},
		},
	}

	_, err := r.ResolveInvariants(ref, map[int]invariant.Declaration{})
	if err == nil {
		t.Fatal("expected an error for a non_null_column check missing a column")
	}
}

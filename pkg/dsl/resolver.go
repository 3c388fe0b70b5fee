// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/alexchoi/bqdrift/pkg/bqerr"
	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
)

// variablePattern matches `${{ versions.N.field }}` with flexible
// whitespace just inside the braces; no whitespace is allowed around the
// dots.
var variablePattern = regexp.MustCompile(`\$\{\{\s*versions\.(\d+)\.(\w+)\s*\}\}`)

// Resolver resolves `${{ versions.N.field }}` references and applies
// extended (remove/modify/add) deltas while walking a query's versions in
// sorted order.
type Resolver struct{}

// NewResolver returns a ready-to-use Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveSchema resolves a single version's schema field against the
// already-resolved schemas of earlier versions (keyed by version number).
func (r *Resolver) ResolveSchema(ref SchemaRef, resolvedVersions map[int]schema.Schema) (schema.Schema, error) {
	switch ref.Kind {
	case SchemaInline:
		return schema.FromFields(ref.Inline), nil

	case SchemaReference:
		version, field, err := extractVersionRef(ref.Reference)
		if err != nil {
			return schema.Schema{}, err
		}
		if field != "schema" {
			return schema.Schema{}, &bqerr.VariableResolutionError{Expression: ref.Reference, Reason: fmt.Sprintf("expected 'schema' field, got %q", field)}
		}
		s, ok := resolvedVersions[version]
		if !ok {
			return schema.Schema{}, &bqerr.InvalidVersionReferenceError{Reference: ref.Reference, FromVersion: version}
		}
		return s.Clone(), nil

	case SchemaExtended:
		return r.resolveExtendedSchema(ref.Extended, resolvedVersions)

	default:
		return schema.Schema{}, fmt.Errorf("unknown schema ref kind %v", ref.Kind)
	}
}

func (r *Resolver) resolveExtendedSchema(ext *ExtendedSchema, resolvedVersions map[int]schema.Schema) (schema.Schema, error) {
	baseVersion, field, err := extractVersionRef(ext.Base)
	if err != nil {
		return schema.Schema{}, err
	}
	if field != "schema" {
		return schema.Schema{}, &bqerr.VariableResolutionError{Expression: ext.Base, Reason: fmt.Sprintf("expected 'schema' field, got %q", field)}
	}
	base, ok := resolvedVersions[baseVersion]
	if !ok {
		return schema.Schema{}, &bqerr.InvalidVersionReferenceError{Reference: ext.Base, FromVersion: baseVersion}
	}

	fields := append([]schema.Field(nil), base.Fields...)

	// Remove fields by name.
	if len(ext.Remove) > 0 {
		removeSet := make(map[string]bool, len(ext.Remove))
		for _, name := range ext.Remove {
			removeSet[name] = true
		}
		kept := fields[:0]
		for _, f := range fields {
			if !removeSet[f.Name] {
				kept = append(kept, f)
			}
		}
		fields = kept
	}

	// Modify existing fields, replacing by name.
	for _, modified := range ext.Modify {
		for i := range fields {
			if fields[i].Name == modified.Name {
				fields[i] = modified
				break
			}
		}
	}

	// Add new fields.
	fields = append(fields, ext.Add...)

	return schema.FromFields(fields), nil
}

// ResolveInvariants resolves a version's (optional) invariants field against
// the already-resolved invariant declarations of earlier versions.
func (r *Resolver) ResolveInvariants(ref *InvariantsRef, resolvedVersions map[int]invariant.Declaration) (invariant.Declaration, error) {
	var result invariant.Declaration

	switch {
	case ref == nil:
		// no-op: result stays the zero value, i.e. no before/after checks.

	case ref.Kind == InvariantsInline:
		result = ref.Inline

	case ref.Kind == InvariantsReference:
		version, field, err := extractVersionRef(ref.Reference)
		if err != nil {
			return invariant.Declaration{}, err
		}
		if field != "invariants" {
			return invariant.Declaration{}, &bqerr.VariableResolutionError{Expression: ref.Reference, Reason: fmt.Sprintf("expected 'invariants' field, got %q", field)}
		}
		resolved, ok := resolvedVersions[version]
		if !ok {
			return invariant.Declaration{}, &bqerr.InvalidVersionReferenceError{Reference: ref.Reference, FromVersion: version}
		}
		result = resolved

	case ref.Kind == InvariantsExtended:
		resolved, err := r.resolveExtendedInvariants(ref.Extended, resolvedVersions)
		if err != nil {
			return invariant.Declaration{}, err
		}
		result = resolved
	}

	if err := validateInvariantsDef(result); err != nil {
		return invariant.Declaration{}, err
	}
	return result, nil
}

func (r *Resolver) resolveExtendedInvariants(ext *ExtendedInvariants, resolvedVersions map[int]invariant.Declaration) (invariant.Declaration, error) {
	baseVersion, field, err := extractVersionRef(ext.Base)
	if err != nil {
		return invariant.Declaration{}, err
	}
	if field != "invariants" {
		return invariant.Declaration{}, &bqerr.VariableResolutionError{Expression: ext.Base, Reason: fmt.Sprintf("expected 'invariants' field, got %q", field)}
	}
	base, ok := resolvedVersions[baseVersion]
	if !ok {
		return invariant.Declaration{}, &bqerr.InvalidVersionReferenceError{Reference: ext.Base, FromVersion: baseVersion}
	}

	before := append([]invariant.Def(nil), base.Before...)
	after := append([]invariant.Def(nil), base.After...)

	if ext.Remove != nil {
		before = removeByName(before, ext.Remove.Before)
		after = removeByName(after, ext.Remove.After)
	}

	if ext.Modify != nil {
		before = modifyByName(before, ext.Modify.Before)
		after = modifyByName(after, ext.Modify.After)
	}

	if ext.Add != nil {
		before = append(before, ext.Add.Before...)
		after = append(after, ext.Add.After...)
	}

	return invariant.Declaration{Before: before, After: after}, nil
}

func removeByName(defs []invariant.Def, names []string) []invariant.Def {
	if len(names) == 0 {
		return defs
	}
	removeSet := make(map[string]bool, len(names))
	for _, n := range names {
		removeSet[n] = true
	}
	kept := defs[:0]
	for _, d := range defs {
		if !removeSet[d.Name] {
			kept = append(kept, d)
		}
	}
	return kept
}

func modifyByName(defs []invariant.Def, modified []invariant.Def) []invariant.Def {
	for _, m := range modified {
		for i := range defs {
			if defs[i].Name == m.Name {
				defs[i] = m
				break
			}
		}
	}
	return defs
}

func validateInvariantsDef(def invariant.Declaration) error {
	for _, inv := range def.Before {
		if err := validateCheck(inv); err != nil {
			return &bqerr.ValidationFailureError{Issues: []string{fmt.Sprintf("invariant %q (before): %s", inv.Name, err)}}
		}
	}
	for _, inv := range def.After {
		if err := validateCheck(inv); err != nil {
			return &bqerr.ValidationFailureError{Issues: []string{fmt.Sprintf("invariant %q (after): %s", inv.Name, err)}}
		}
	}
	return nil
}

func validateCheck(inv invariant.Def) error {
	switch inv.Check.Kind {
	case invariant.CheckRowCountBounds:
		if inv.Check.Min == nil && inv.Check.Max == nil {
			return fmt.Errorf("row_count_bounds requires at least one of min/max")
		}
	case invariant.CheckNonNullColumn:
		if inv.Check.Column == "" {
			return fmt.Errorf("non_null_column requires a column")
		}
	case invariant.CheckUniqueness:
		if len(inv.Check.Columns) == 0 {
			return fmt.Errorf("uniqueness requires at least one column")
		}
	case invariant.CheckCustomSQL:
		if inv.Check.Predicate == "" {
			return fmt.Errorf("custom_sql requires a predicate")
		}
	default:
		return fmt.Errorf("unknown check kind %q", inv.Check.Kind)
	}
	return nil
}

// IsVariableRef reports whether s contains a `${{ versions.N.field }}`
// reference anywhere in its text.
func (r *Resolver) IsVariableRef(s string) bool {
	return variablePattern.MatchString(s)
}

// ResolveSQLRef resolves a `${{ versions.N.sql }}` reference against
// already-resolved SQL text, keyed by version number. A string with no
// variable reference is returned unchanged.
func (r *Resolver) ResolveSQLRef(sqlRef string, resolvedSQLs map[int]string) (string, error) {
	m := variablePattern.FindStringSubmatch(sqlRef)
	if m == nil {
		return sqlRef, nil
	}

	version, err := strconv.Atoi(m[1])
	if err != nil {
		return "", &bqerr.InvalidVersionReferenceError{Reference: sqlRef}
	}
	field := m[2]
	if field != "sql" {
		return "", &bqerr.VariableResolutionError{Expression: sqlRef, Reason: fmt.Sprintf("expected 'sql' field, got %q", field)}
	}

	sql, ok := resolvedSQLs[version]
	if !ok {
		return "", &bqerr.InvalidVersionReferenceError{Reference: sqlRef, FromVersion: version}
	}
	return sql, nil
}

// extractVersionRef parses a `${{ versions.N.field }}` string into its
// version number and field name.
func extractVersionRef(ref string) (version int, field string, err error) {
	m := variablePattern.FindStringSubmatch(ref)
	if m == nil {
		return 0, "", &bqerr.InvalidVersionReferenceError{Reference: ref}
	}
	version, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, "", &bqerr.InvalidVersionReferenceError{Reference: ref}
	}
	return version, m[2], nil
}

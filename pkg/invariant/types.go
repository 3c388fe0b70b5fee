// SPDX-License-Identifier: Apache-2.0

// Package invariant defines the pre/post execution checks that guard a
// partition write, and the checker that runs them against a warehouse.
package invariant

// Severity controls whether a failed check aborts a partition write
// (Error) or is merely recorded (Warning).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// CheckKind selects which predicate a Check evaluates.
type CheckKind string

const (
	CheckRowCountBounds CheckKind = "row_count_bounds"
	CheckNonNullColumn  CheckKind = "non_null_column"
	CheckUniqueness     CheckKind = "uniqueness"
	CheckCustomSQL      CheckKind = "custom_sql"
)

// Check is a tagged union over the four supported invariant predicates.
// Only the fields relevant to Kind are populated.
type Check struct {
	Kind CheckKind `json:"kind" yaml:"kind"`

	// RowCountBounds
	Min *int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int64 `json:"max,omitempty" yaml:"max,omitempty"`

	// NonNullColumn
	Column string `json:"column,omitempty" yaml:"column,omitempty"`

	// Uniqueness
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`

	// CustomSQL: a predicate expected to evaluate to a single boolean row;
	// false means the check failed.
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
}

// Def is one fully-resolved invariant: a name, the check it runs, its
// severity, and an optional human description.
type Def struct {
	Name        string   `json:"name" yaml:"name"`
	Check       Check    `json:"check" yaml:"check"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Declaration holds a version's fully variable-resolved invariants, already
// split into the two lists they run as.
type Declaration struct {
	Before []Def `json:"before" yaml:"before"`
	After  []Def `json:"after" yaml:"after"`
}

// ResolveDeclaration splits a resolved Declaration into its before/after
// check lists. Variable resolution happens upstream in the DSL resolver, so
// this is a pure accessor kept as its own function for symmetry with the
// checker's other verbs.
func ResolveDeclaration(def Declaration) (before, after []Def) {
	return def.Before, def.After
}

// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"fmt"

	"github.com/alexchoi/bqdrift/pkg/dsl"
)

// ViolationKind identifies which immutability rule a version or revision
// broke.
type ViolationKind string

const (
	// DuplicateEffectiveFrom means two versions within the same query share
	// an effective_from timestamp. Revisions sharing a date are reported as
	// NonMonotonicEffectiveFrom.
	DuplicateEffectiveFrom ViolationKind = "duplicate_effective_from"
	// NonMonotonicEffectiveFrom means a later-declared revision has an
	// effective_from that does not strictly exceed its predecessor's.
	NonMonotonicEffectiveFrom ViolationKind = "non_monotonic_effective_from"
	// NoOpRevision means a revision's SQL is byte-identical to the SQL it
	// claims to revise, so it could never have changed drift behavior.
	NoOpRevision ViolationKind = "no_op_revision"
)

// Violation is a single immutability rule broken by a version or revision.
type Violation struct {
	QueryName string
	Version   int
	Revision  *int
	Kind      ViolationKind
	Message   string
}

// ImmutabilityReport collects every violation found in one query.
type ImmutabilityReport struct {
	Violations []Violation
}

// HasViolations reports whether any query failed an immutability check.
func (r ImmutabilityReport) HasViolations() bool {
	return len(r.Violations) > 0
}

// ImmutabilityChecker verifies that once a version or revision has gone
// live, its historical record never silently changes underneath already-run
// partitions: no two revisions may share an effective date, effective dates
// must strictly increase, and a revision must actually change the SQL it
// revises.
type ImmutabilityChecker struct{}

// NewImmutabilityChecker returns a ready-to-use checker.
func NewImmutabilityChecker() *ImmutabilityChecker {
	return &ImmutabilityChecker{}
}

// Check runs every immutability rule against one query's resolved versions.
func (c *ImmutabilityChecker) Check(query dsl.QueryDef) ImmutabilityReport {
	var report ImmutabilityReport

	seenVersionDates := make(map[string]int)
	for _, v := range query.Versions {
		key := v.EffectiveFrom.UTC().Format("2006-01-02T15:04:05Z")
		if prior, ok := seenVersionDates[key]; ok {
			report.Violations = append(report.Violations, Violation{
				QueryName: query.Name,
				Version:   v.Version,
				Kind:      DuplicateEffectiveFrom,
				Message:   fmt.Sprintf("version %d shares effective_from with version %d", v.Version, prior),
			})
		}
		seenVersionDates[key] = v.Version

		report.Violations = append(report.Violations, c.checkRevisions(query.Name, v)...)
	}

	return report
}

func (c *ImmutabilityChecker) checkRevisions(queryName string, v dsl.VersionDef) []Violation {
	var violations []Violation

	prevEffective := v.EffectiveFrom
	prevSQL := v.SQLContent
	for _, rev := range v.Revisions {
		revisionNum := rev.Revision

		if !rev.EffectiveFrom.After(prevEffective) {
			violations = append(violations, Violation{
				QueryName: queryName,
				Version:   v.Version,
				Revision:  &revisionNum,
				Kind:      NonMonotonicEffectiveFrom,
				Message:   fmt.Sprintf("revision %d effective_from does not strictly exceed the prior effective date", revisionNum),
			})
		}

		if rev.SQLContent == prevSQL {
			violations = append(violations, Violation{
				QueryName: queryName,
				Version:   v.Version,
				Revision:  &revisionNum,
				Kind:      NoOpRevision,
				Message:   fmt.Sprintf("revision %d does not change the SQL of its predecessor", revisionNum),
			})
		}

		prevEffective = rev.EffectiveFrom
		prevSQL = rev.SQLContent
	}

	return violations
}

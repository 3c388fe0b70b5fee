// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"testing"
	"time"

	"github.com/alexchoi/bqdrift/pkg/checksum"
	"github.com/alexchoi/bqdrift/pkg/dsl"
)

func computeYAMLChecksum(text string) string {
	return checksum.Compute("", "", text).YAML
}

func TestImmutabilityCheckerFlagsDuplicateEffectiveFrom(t *testing.T) {
	shared := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query := dsl.QueryDef{
		Name: "q",
		Versions: []dsl.VersionDef{
			{Version: 1, EffectiveFrom: shared, SQLContent: "SELECT 1"},
			{Version: 2, EffectiveFrom: shared, SQLContent: "SELECT 2"},
		},
	}

	report := NewImmutabilityChecker().Check(query)
	if !report.HasViolations() {
		t.Fatal("expected a duplicate effective_from violation")
	}
	if report.Violations[0].Kind != DuplicateEffectiveFrom {
		t.Errorf("expected DuplicateEffectiveFrom, got %v", report.Violations[0].Kind)
	}
}

func TestImmutabilityCheckerFlagsNoOpRevision(t *testing.T) {
	sql := "SELECT 1"
	query := dsl.QueryDef{
		Name: "q",
		Versions: []dsl.VersionDef{
			{
				Version:       1,
				EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				SQLContent:    sql,
				Revisions: []dsl.ResolvedRevision{
					{Revision: 1, EffectiveFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), SQLContent: sql},
				},
			},
		},
	}

	report := NewImmutabilityChecker().Check(query)
	found := false
	for _, v := range report.Violations {
		if v.Kind == NoOpRevision {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a no-op revision violation")
	}
}

func TestImmutabilityCheckerAcceptsCleanHistory(t *testing.T) {
	query := dsl.QueryDef{
		Name: "q",
		Versions: []dsl.VersionDef{
			{
				Version:       1,
				EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				SQLContent:    "SELECT 1",
				Revisions: []dsl.ResolvedRevision{
					{Revision: 1, EffectiveFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), SQLContent: "SELECT 2"},
				},
			},
			{Version: 2, EffectiveFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SQLContent: "SELECT 3"},
		},
	}

	report := NewImmutabilityChecker().Check(query)
	if report.HasViolations() {
		t.Fatalf("expected no violations, got %+v", report.Violations)
	}
}

func TestSourceAuditorFlagsRewrittenDeclaration(t *testing.T) {
	original := "name: q\nversions: []\n"
	rewritten := "name: q\nversions: [] # edited by hand\n"

	stored := []PartitionState{
		{
			QueryName:    "q",
			YAMLChecksum: computeYAMLChecksum(original),
			ExecutedAt:   time.Now().UTC(),
		},
	}

	report := NewSourceAuditor().Audit(map[string]string{"q": rewritten}, stored)
	if len(report.Rewritten()) != 1 {
		t.Fatalf("expected 1 rewritten entry, got %d", len(report.Rewritten()))
	}
}

func TestSourceAuditorMatchesUnchangedDeclaration(t *testing.T) {
	text := "name: q\nversions: []\n"
	stored := []PartitionState{
		{
			QueryName:    "q",
			YAMLChecksum: computeYAMLChecksum(text),
			ExecutedAt:   time.Now().UTC(),
		},
	}

	report := NewSourceAuditor().Audit(map[string]string{"q": text}, stored)
	if len(report.Entries) != 1 || report.Entries[0].Status != SourceMatches {
		t.Fatalf("expected a matching entry, got %+v", report.Entries)
	}
}

func TestSourceAuditorReportsUnknownWithNoHistory(t *testing.T) {
	report := NewSourceAuditor().Audit(map[string]string{"new_query": "name: new_query\n"}, nil)
	if len(report.Entries) != 1 || report.Entries[0].Status != SourceUnknown {
		t.Fatalf("expected an unknown entry, got %+v", report.Entries)
	}
}

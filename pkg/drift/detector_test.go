// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"testing"
	"time"

	"github.com/alexchoi/bqdrift/pkg/checksum"
	"github.com/alexchoi/bqdrift/pkg/dsl"
	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
)

func testQuery(name, sqlContent string) dsl.QueryDef {
	field := "date"
	return dsl.QueryDef{
		Name: name,
		Destination: schema.Destination{
			Dataset:   "test_dataset",
			Table:     "test_table",
			Partition: &schema.PartitionConfig{Type: schema.PartitionTypeDay, Field: field},
		},
		Versions: []dsl.VersionDef{
			{
				Version:       1,
				EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				SQLContent:    sqlContent,
				Schema:        schema.Schema{},
				Invariants:    invariant.Declaration{},
			},
		},
	}
}

func testStoredState(queryName string, partitionDate time.Time, sqlContent, yamlContent string) PartitionState {
	sums := checksum.Compute(sqlContent, schema.Schema{}.Canonical(), yamlContent)
	b64, _ := checksum.CompressToBase64(sqlContent)
	return PartitionState{
		QueryName:      queryName,
		PartitionDate:  partitionDate,
		Version:        1,
		EffectiveFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SQLChecksum:    sums.SQL,
		SchemaChecksum: sums.Schema,
		YAMLChecksum:   sums.YAML,
		ExecutedSQLB64: b64,
		UpstreamStates: map[string]time.Time{},
		ExecutedAt:     time.Now().UTC(),
		Status:         StatusSuccess,
	}
}

func TestDetectNeverRunHasCurrentSQL(t *testing.T) {
	query := testQuery("test_query", "SELECT * FROM source")
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": "name: test_query"})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	report, err := detector.Detect(nil, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Partitions) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(report.Partitions))
	}
	drift := report.Partitions[0]
	if drift.State != StateNeverRun {
		t.Errorf("expected NeverRun, got %v", drift.State)
	}
	if drift.CurrentSQL == "" {
		t.Errorf("expected current_sql to be populated for NeverRun")
	}
	if drift.ExecutedSQLB64 != "" {
		t.Errorf("expected no executed_sql_b64 for NeverRun")
	}
}

func TestDetectCurrentPreservesExecutedSQL(t *testing.T) {
	sql := "SELECT * FROM source"
	yaml := "name: test_query"
	query := testQuery("test_query", sql)
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": yaml})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := testStoredState("test_query", date, sql, yaml)

	report, err := detector.Detect([]PartitionState{stored}, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drift := report.Partitions[0]
	if drift.State != StateCurrent {
		t.Errorf("expected Current, got %v", drift.State)
	}
	if drift.CurrentSQL != "" {
		t.Errorf("expected no current_sql for Current")
	}
	if drift.ExecutedSQLB64 == "" {
		t.Errorf("expected executed_sql_b64 to be preserved")
	}
}

func TestDetectSQLChangedExecutedSQLDecompresses(t *testing.T) {
	oldSQL := "SELECT user_id FROM users"
	newSQL := "SELECT COALESCE(user_id, 'anon') FROM users"
	yaml := "name: test_query"

	query := testQuery("test_query", newSQL)
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": yaml})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := testStoredState("test_query", date, oldSQL, yaml)

	report, err := detector.Detect([]PartitionState{stored}, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drift := report.Partitions[0]
	if drift.State != StateSqlChanged {
		t.Errorf("expected SqlChanged, got %v", drift.State)
	}

	decoded, err := checksum.DecompressFromBase64(drift.ExecutedSQLB64)
	if err != nil {
		t.Fatalf("expected executed_sql_b64 to decompress: %v", err)
	}
	if decoded != oldSQL {
		t.Errorf("expected decoded SQL to be the old SQL, got %q", decoded)
	}
}

func TestDetectFailedStatePreservesExecutedSQL(t *testing.T) {
	sql := "SELECT * FROM source"
	yaml := "name: test_query"
	query := testQuery("test_query", sql)
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": yaml})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := testStoredState("test_query", date, sql, yaml)
	stored.Status = StatusFailed

	report, err := detector.Detect([]PartitionState{stored}, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drift := report.Partitions[0]
	if drift.State != StateFailed {
		t.Errorf("expected Failed, got %v", drift.State)
	}
	if drift.ExecutedSQLB64 == "" {
		t.Errorf("expected executed_sql_b64 to be preserved for a failed partition")
	}
}

func TestDetectSchemaChangedPreservesExecutedSQL(t *testing.T) {
	sql := "SELECT * FROM source"
	yaml := "name: test_query"
	query := testQuery("test_query", sql)
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": yaml})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := testStoredState("test_query", date, sql, yaml)
	stored.SchemaChecksum = "deadbeefdeadbeef"

	report, err := detector.Detect([]PartitionState{stored}, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drift := report.Partitions[0]
	if drift.State != StateSchemaChanged {
		t.Errorf("expected SchemaChanged, got %v", drift.State)
	}
	if drift.ExecutedSQLB64 == "" || drift.CurrentSQL == "" {
		t.Errorf("expected both executed and current SQL to be present")
	}
}

func TestDetectMultipleDates(t *testing.T) {
	sql := "SELECT * FROM source"
	yaml := "name: test_query"
	query := testQuery("test_query", sql)
	detector := NewDetector([]dsl.QueryDef{query}, map[string]string{"test_query": yaml})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	report, err := detector.Detect(nil, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Partitions) != 5 {
		t.Fatalf("expected 5 partitions, got %d", len(report.Partitions))
	}
	for _, drift := range report.Partitions {
		if drift.State != StateNeverRun {
			t.Errorf("expected NeverRun for all partitions, got %v", drift.State)
		}
		if drift.CurrentSQL == "" {
			t.Errorf("expected current_sql for all NeverRun partitions")
		}
	}
}

func TestDetectUpstreamChangedIsSeparatePass(t *testing.T) {
	downstream := testQuery("downstream", "SELECT * FROM upstream_table")
	detector := NewDetector([]dsl.QueryDef{downstream}, map[string]string{"downstream": "name: downstream"})

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := testStoredState("downstream", date, "SELECT * FROM upstream_table", "name: downstream")
	recordedTime := time.Now().UTC().Add(-time.Hour)
	stored.UpstreamStates = map[string]time.Time{"upstream": recordedTime}

	// Detect alone must never produce UpstreamChanged.
	report, err := detector.Detect([]PartitionState{stored}, date, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Partitions[0].State == StateUpstreamChanged {
		t.Fatalf("Detect must never itself classify UpstreamChanged")
	}

	upstreamState := PartitionState{
		QueryName:     "upstream",
		PartitionDate: date,
		ExecutedAt:    time.Now().UTC(),
		Status:        StatusSuccess,
	}

	causedBy, changed := detector.DetectUpstreamChanged(stored, []PartitionState{upstreamState})
	if !changed || causedBy != "upstream" {
		t.Errorf("expected upstream change attributed to 'upstream', got %q, %v", causedBy, changed)
	}
}

func TestBuildStateIndexKeepsLatestExecutedAt(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	older := PartitionState{QueryName: "q", PartitionDate: date, ExecutedAt: time.Now().Add(-time.Hour), Version: 1}
	newer := PartitionState{QueryName: "q", PartitionDate: date, ExecutedAt: time.Now(), Version: 2}

	index := buildStateIndex([]PartitionState{older, newer})
	got := index[stateKey{"q", date}]
	if got.Version != 2 {
		t.Errorf("expected the latest executed_at row to win, got version %d", got.Version)
	}
}

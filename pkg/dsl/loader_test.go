// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alexchoi/bqdrift/pkg/bqlog"
)

const basicDeclaration = `
name: orders_daily
destination:
  dataset: analytics
  table: orders_daily
  partition:
    type: day
    field: event_date
  cluster: [customer_id]
versions:
  - version: 1
    effective_from: 2024-01-01
    source: "SELECT * FROM raw.orders WHERE DATE(created_at) = @partition_date"
    schema:
      - name: order_id
        type: STRING
        mode: REQUIRED
      - name: amount
        type: NUMERIC
        mode: REQUIRED
    invariants:
      before:
        - name: has_rows
          severity: error
          check:
            kind: row_count_bounds
            min: 1
      after: []
  - version: 2
    effective_from: 2024-06-01
    source: "SELECT * FROM raw.orders JOIN raw.refunds ON TRUE WHERE DATE(created_at) = @partition_date"
    schema:
      base: "${{ versions.1.schema }}"
      add:
        - name: refund_amount
          type: NUMERIC
          mode: NULLABLE
    invariants: "${{ versions.1.invariants }}"
    revisions:
      - revision: 1
        effective_from: 2024-07-15
        source: "SELECT * FROM raw.orders JOIN raw.refunds_v2 ON TRUE WHERE DATE(created_at) = @partition_date"
        reason: "refunds table renamed"
`

func writeDeclaration(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadQueryResolvesVersionsAndRevisions(t *testing.T) {
	dir := t.TempDir()
	path := writeDeclaration(t, dir, "orders_daily.yaml", basicDeclaration)

	loader := NewQueryLoader(bqlog.NewNoop())
	q, err := loader.LoadQuery(path)
	if err != nil {
		t.Fatalf("LoadQuery: %v", err)
	}

	if q.Name != "orders_daily" {
		t.Errorf("unexpected name %q", q.Name)
	}
	if len(q.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(q.Versions))
	}
	if len(q.Versions[1].Schema.Fields) != 3 {
		t.Errorf("expected extended schema to carry 3 fields, got %d", len(q.Versions[1].Schema.Fields))
	}
	if len(q.Versions[1].Invariants.Before) != 1 || q.Versions[1].Invariants.Before[0].Name != "has_rows" {
		t.Errorf("expected invariants to resolve via reference, got %+v", q.Versions[1].Invariants)
	}
	if len(q.Versions[1].Revisions) != 1 {
		t.Fatalf("expected 1 revision on version 2, got %d", len(q.Versions[1].Revisions))
	}
	if len(q.Versions[1].Revisions[0].Dependencies) == 0 {
		t.Errorf("expected revision SQL dependencies to be extracted")
	}
	if q.Destination.Cluster == nil || len(q.Destination.Cluster.Fields) != 1 {
		t.Errorf("expected cluster config to be resolved, got %+v", q.Destination.Cluster)
	}

	issues := ValidateQueryDef(q)
	if len(issues) != 0 {
		t.Errorf("expected no validation issues, got %v", issues)
	}
}

func TestLoadDirSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeDeclaration(t, dir, "orders_daily.yaml", basicDeclaration)
	// A dangling symlink is listed by the directory walk but cannot be read.
	if err := os.Symlink(filepath.Join(dir, "missing.txt"), filepath.Join(dir, "broken.yaml")); err != nil {
		t.Fatal(err)
	}

	loader := NewQueryLoader(bqlog.NewNoop())
	queries, verbatim, err := loader.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if _, ok := verbatim["orders_daily"]; !ok {
		t.Errorf("expected verbatim text to be recorded under the query name")
	}
}

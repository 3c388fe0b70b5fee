// SPDX-License-Identifier: Apache-2.0

package invariant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexchoi/bqdrift/pkg/schema"
)

// QueryResult is the tabular result of a warehouse query, as needed to
// evaluate an invariant predicate.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Querier is the minimal warehouse capability the checker needs: running a
// read query and getting rows back. Satisfied structurally by
// pkg/warehouse.Client, kept separate here so this package doesn't import
// the whole warehouse client contract for one method.
type Querier interface {
	Query(ctx context.Context, sql string) (QueryResult, error)
}

// Checker runs a set of resolved invariants against one (destination,
// partition date) pair.
type Checker struct {
	client        Querier
	dest          schema.Destination
	partitionDate time.Time
}

// NewChecker builds a Checker bound to a single partition.
func NewChecker(client Querier, dest schema.Destination, partitionDate time.Time) *Checker {
	return &Checker{client: client, dest: dest, partitionDate: partitionDate}
}

// RunChecks executes checks sequentially, in order, against the bound
// partition. A check that errors against the warehouse is recorded as
// Failed with the error message rather than aborting the batch.
func (c *Checker) RunChecks(ctx context.Context, checks []Def) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(checks))
	for _, chk := range checks {
		results = append(results, c.runOne(ctx, chk))
	}
	return results, nil
}

func (c *Checker) runOne(ctx context.Context, chk Def) CheckResult {
	sql, err := c.buildQuery(chk)
	if err != nil {
		return CheckResult{Name: chk.Name, Status: StatusSkipped, Severity: chk.Severity, Message: err.Error()}
	}

	res, err := c.client.Query(ctx, sql)
	if err != nil {
		return CheckResult{Name: chk.Name, Status: StatusFailed, Severity: chk.Severity, Message: err.Error()}
	}

	ok, message := evaluate(chk, res)
	status := StatusFailed
	if ok {
		status = StatusPassed
	}
	return CheckResult{Name: chk.Name, Status: status, Severity: chk.Severity, Message: message}
}

func (c *Checker) whereClause() string {
	field, ok := c.dest.PartitionField()
	if !ok {
		return "TRUE"
	}
	return fmt.Sprintf("DATE(%s) = DATE('%s')", quoteIdent(field), c.partitionDate.Format("2006-01-02"))
}

func (c *Checker) buildQuery(chk Def) (string, error) {
	table := c.dest.QualifiedName()
	where := c.whereClause()

	switch chk.Check.Kind {
	case CheckRowCountBounds:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), nil

	case CheckNonNullColumn:
		if chk.Check.Column == "" {
			return "", fmt.Errorf("invariant %q: non_null_column check requires a column", chk.Name)
		}
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s AND %s IS NULL", table, where, quoteIdent(chk.Check.Column)), nil

	case CheckUniqueness:
		if len(chk.Check.Columns) == 0 {
			return "", fmt.Errorf("invariant %q: uniqueness check requires at least one column", chk.Name)
		}
		cols := make([]string, len(chk.Check.Columns))
		for i, col := range chk.Check.Columns {
			cols[i] = quoteIdent(col)
		}
		colList := strings.Join(cols, ", ")
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM (SELECT %s FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1)",
			colList, table, where, colList,
		), nil

	case CheckCustomSQL:
		if chk.Check.Predicate == "" {
			return "", fmt.Errorf("invariant %q: custom_sql check requires a predicate", chk.Name)
		}
		return fmt.Sprintf("SELECT (%s) AS bqdrift_invariant_ok", chk.Check.Predicate), nil

	default:
		return "", fmt.Errorf("invariant %q: unknown check kind %q", chk.Name, chk.Check.Kind)
	}
}

// evaluate interprets the single-row, single-column result of buildQuery's
// query for the given check kind.
func evaluate(chk Def, res QueryResult) (bool, string) {
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return false, "query returned no rows"
	}
	cell := res.Rows[0][0]

	switch chk.Check.Kind {
	case CheckRowCountBounds:
		count, ok := asInt64(cell)
		if !ok {
			return false, fmt.Sprintf("expected a numeric row count, got %v", cell)
		}
		if chk.Check.Min != nil && count < *chk.Check.Min {
			return false, fmt.Sprintf("row count %d below minimum %d", count, *chk.Check.Min)
		}
		if chk.Check.Max != nil && count > *chk.Check.Max {
			return false, fmt.Sprintf("row count %d above maximum %d", count, *chk.Check.Max)
		}
		return true, fmt.Sprintf("row count %d within bounds", count)

	case CheckNonNullColumn:
		count, ok := asInt64(cell)
		if !ok {
			return false, fmt.Sprintf("expected a numeric null count, got %v", cell)
		}
		if count > 0 {
			return false, fmt.Sprintf("%d null value(s) found in column %q", count, chk.Check.Column)
		}
		return true, "no null values found"

	case CheckUniqueness:
		count, ok := asInt64(cell)
		if !ok {
			return false, fmt.Sprintf("expected a numeric duplicate count, got %v", cell)
		}
		if count > 0 {
			return false, fmt.Sprintf("%d duplicate group(s) found over %v", count, chk.Check.Columns)
		}
		return true, "no duplicates found"

	case CheckCustomSQL:
		truthy, ok := asBool(cell)
		if !ok {
			return false, fmt.Sprintf("expected a boolean predicate result, got %v", cell)
		}
		if !truthy {
			return false, "custom predicate evaluated false"
		}
		return true, "custom predicate evaluated true"
	}

	return false, "unreachable"
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	return false, false
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

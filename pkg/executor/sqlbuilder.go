// SPDX-License-Identifier: Apache-2.0

// Package executor generates warehouse-dialect SQL for a partition write and
// orchestrates running it, with bounded concurrency, across a backfill
// range.
package executor

import (
	"fmt"
	"strings"

	"github.com/alexchoi/bqdrift/pkg/schema"
)

// partitionDateParam is substituted with the partition's SQL value wherever
// a declaration's SQL references it.
const partitionDateParam = "@partition_date"

func substitutePartitionDate(sql string, key schema.PartitionKey) string {
	return strings.ReplaceAll(sql, partitionDateParam, "'"+key.SQLValue()+"'")
}

// partitionCondition builds the dialect-specific WHEN NOT MATCHED BY SOURCE
// predicate for a MERGE: hour/month/year partitions truncate the target
// column to their grain before comparing; day and range partitions compare
// it directly.
func partitionCondition(partitionField string, key schema.PartitionKey) string {
	switch key.Grain() {
	case "hour":
		return fmt.Sprintf("TIMESTAMP_TRUNC(target.%s, HOUR) = %s", partitionField, key.SQLLiteral())
	case "month":
		return fmt.Sprintf("DATE_TRUNC(target.%s, MONTH) = %s", partitionField, key.SQLLiteral())
	case "year":
		return fmt.Sprintf("DATE_TRUNC(target.%s, YEAR) = %s", partitionField, key.SQLLiteral())
	default: // day, range
		return fmt.Sprintf("target.%s = %s", partitionField, key.SQLLiteral())
	}
}

// buildMergeSQL generates an atomic partition-replace statement: the
// existing partition is deleted and the new rows inserted in one MERGE, so a
// reader never observes a half-written partition.
func buildMergeSQL(dest schema.Destination, partitionField string, sql string, key schema.PartitionKey) string {
	parameterized := substitutePartitionDate(sql, key)
	condition := partitionCondition(partitionField, key)

	return fmt.Sprintf(`
MERGE %s AS target
USING (
%s
) AS source
ON FALSE
WHEN NOT MATCHED BY SOURCE AND %s THEN DELETE
WHEN NOT MATCHED BY TARGET THEN INSERT ROW
`, dest.QualifiedName(), parameterized, condition)
}

// buildTruncateInsertSQL generates the non-atomic truncate-then-insert pair
// used when the writer's mode is WriteModeTruncateInsert: a DELETE targeting the
// decorated partition table, followed by an INSERT of the query's rows.
func buildTruncateInsertSQL(dest schema.Destination, sql string, key schema.PartitionKey) (insertSQL, deleteSQL string) {
	decorated := dest.DecoratedName(key)
	parameterized := substitutePartitionDate(sql, key)

	insertSQL = fmt.Sprintf("\nINSERT INTO %s\n%s\n", decorated, parameterized)
	deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE TRUE", decorated)
	return insertSQL, deleteSQL
}

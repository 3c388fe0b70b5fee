// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"regexp"
	"sort"
	"strings"
)

// tableRefPattern matches a backtick-quoted or bare table reference
// following FROM or JOIN, case-insensitively. It does not attempt to parse
// SQL in general — only enough to recover upstream table names, since the
// target dialect (BigQuery, with backticked `project.dataset.table`
// identifiers and parameterized partition filters) does not round-trip
// through a general-purpose SQL parser such as a Postgres grammar.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+` + "`" + `?([a-zA-Z0-9_.\-]+)` + "`" + `?`)

// ExtractDependencies returns the lowercased, deduplicated, sorted set of
// table names referenced in a FROM or JOIN clause of sql.
func ExtractDependencies(sql string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(sql, -1)
	seen := make(map[string]bool, len(matches))
	var tables []string
	for _, m := range matches {
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

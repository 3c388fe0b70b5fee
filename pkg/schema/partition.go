// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// PartitionType names the partitioning scheme a destination table uses.
type PartitionType string

const (
	PartitionTypeHour  PartitionType = "hour"
	PartitionTypeDay   PartitionType = "day"
	PartitionTypeMonth PartitionType = "month"
	PartitionTypeYear  PartitionType = "year"
	PartitionTypeRange PartitionType = "range"
)

// PartitionConfig is the destination-level partitioning declaration: which
// scheme, and which column it applies to.
type PartitionConfig struct {
	Type  PartitionType `json:"type" yaml:"type"`
	Field string        `json:"field" yaml:"field"`
}

// Day is a convenience constructor mirroring the teacher's short helper
// constructors on config-like structs.
func Day(field string) PartitionConfig {
	return PartitionConfig{Type: PartitionTypeDay, Field: field}
}

// FieldName returns the partition column name, or ("", false) if the
// destination has no partition field configured.
func (c PartitionConfig) FieldName() (string, bool) {
	if c.Field == "" {
		return "", false
	}
	return c.Field, true
}

// partitionKind is the internal discriminant for PartitionKey. PartitionKey
// is modeled as a single struct with a kind tag (rather than an interface
// with five implementations) because every operation on it is a small
// switch. Its fields are unexported, so it has no JSON encoding of its own.
type partitionKind int

const (
	kindHour partitionKind = iota
	kindDay
	kindMonth
	kindYear
	kindRange
)

// PartitionKey identifies a single partition of a destination table. Exactly
// one of the kind-specific fields is meaningful, selected by the key's kind
// (reported by Grain()).
type PartitionKey struct {
	kind  partitionKind
	t     time.Time // hour or day, always UTC, truncated to the relevant unit
	year  int
	month time.Month
	rng   int64
}

// Hour builds an hour-grained PartitionKey.
func Hour(t time.Time) PartitionKey {
	t = t.UTC().Truncate(time.Hour)
	return PartitionKey{kind: kindHour, t: t}
}

// NewDay builds a day-grained PartitionKey.
func NewDay(t time.Time) PartitionKey {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return PartitionKey{kind: kindDay, t: t}
}

// Month builds a month-grained PartitionKey.
func Month(year int, month time.Month) PartitionKey {
	return PartitionKey{kind: kindMonth, year: year, month: month}
}

// Year builds a year-grained PartitionKey.
func Year(year int) PartitionKey {
	return PartitionKey{kind: kindYear, year: year}
}

// Range builds an integer-range PartitionKey.
func Range(n int64) PartitionKey {
	return PartitionKey{kind: kindRange, rng: n}
}

// IsDay reports whether this key is day-grained.
func (k PartitionKey) IsDay() bool { return k.kind == kindDay }

// Grain names this key's partitioning unit: "hour", "day", "month", "year",
// or "range". SQL generators switch on it to pick a dialect-specific
// partition comparison without parsing PartitionKey.String().
func (k PartitionKey) Grain() string {
	switch k.kind {
	case kindHour:
		return "hour"
	case kindDay:
		return "day"
	case kindMonth:
		return "month"
	case kindYear:
		return "year"
	case kindRange:
		return "range"
	}
	return ""
}

// ToNaiveDate returns the calendar date this partition falls on, used for
// version lookups. Range partitions have no natural calendar date; by
// convention they map to the Unix epoch offset by the range value in days,
// which keeps get_version_for_date total over all partition kinds without a
// separate code path.
func (k PartitionKey) ToNaiveDate() time.Time {
	switch k.kind {
	case kindHour, kindDay:
		return time.Date(k.t.Year(), k.t.Month(), k.t.Day(), 0, 0, 0, 0, time.UTC)
	case kindMonth:
		return time.Date(k.year, k.month, 1, 0, 0, 0, 0, time.UTC)
	case kindYear:
		return time.Date(k.year, time.January, 1, 0, 0, 0, 0, time.UTC)
	case kindRange:
		return time.Unix(0, 0).UTC().AddDate(0, 0, int(k.rng))
	}
	return time.Time{}
}

// Decorator returns the warehouse partition-decorator suffix for this key,
// e.g. "$20240301" for a day partition.
func (k PartitionKey) Decorator() string {
	switch k.kind {
	case kindHour:
		return "$" + k.t.Format("2006010215")
	case kindDay:
		return "$" + k.t.Format("20060102")
	case kindMonth:
		return "$" + fmt.Sprintf("%04d%02d", k.year, int(k.month))
	case kindYear:
		return "$" + fmt.Sprintf("%04d", k.year)
	case kindRange:
		return fmt.Sprintf("$%d", k.rng)
	}
	return ""
}

// SQLValue returns the raw (unquoted, unwrapped) value used for
// @partition_date parameter substitution.
func (k PartitionKey) SQLValue() string {
	switch k.kind {
	case kindHour:
		return k.t.Format("2006-01-02 15:04:05")
	case kindDay:
		return k.t.Format("2006-01-02")
	case kindMonth:
		return fmt.Sprintf("%04d-%02d-01", k.year, int(k.month))
	case kindYear:
		return fmt.Sprintf("%04d-01-01", k.year)
	case kindRange:
		return fmt.Sprintf("%d", k.rng)
	}
	return ""
}

// SQLLiteral returns the dialect-wrapped literal for use directly in
// generated SQL, e.g. DATE('2024-03-01') or 42.
func (k PartitionKey) SQLLiteral() string {
	switch k.kind {
	case kindHour:
		return fmt.Sprintf("TIMESTAMP('%s')", k.SQLValue())
	case kindDay, kindMonth, kindYear:
		return fmt.Sprintf("DATE('%s')", k.SQLValue())
	case kindRange:
		return k.SQLValue()
	}
	return ""
}

// Next returns the next partition of the same kind and grain.
func (k PartitionKey) Next() PartitionKey {
	return k.NextBy(1)
}

// NextBy returns the partition `stride` units ahead, in the same kind's unit
// (hours/days/months/years/range steps).
func (k PartitionKey) NextBy(stride int64) PartitionKey {
	switch k.kind {
	case kindHour:
		return PartitionKey{kind: kindHour, t: k.t.Add(time.Duration(stride) * time.Hour)}
	case kindDay:
		return PartitionKey{kind: kindDay, t: k.t.AddDate(0, 0, int(stride))}
	case kindMonth:
		total := int(k.year)*12 + int(k.month) - 1 + int(stride)
		return PartitionKey{kind: kindMonth, year: total / 12, month: time.Month(total%12 + 1)}
	case kindYear:
		return PartitionKey{kind: kindYear, year: k.year + int(stride)}
	case kindRange:
		return PartitionKey{kind: kindRange, rng: k.rng + stride}
	}
	return k
}

// orderKey returns a value comparable within the same kind only; comparing
// across kinds is a caller error and returns an arbitrary but stable result.
func (k PartitionKey) orderKey() int64 {
	switch k.kind {
	case kindHour, kindDay:
		return k.t.Unix()
	case kindMonth:
		return int64(k.year)*12 + int64(k.month)
	case kindYear:
		return int64(k.year)
	case kindRange:
		return k.rng
	}
	return 0
}

// Compare returns -1, 0 or 1 comparing two PartitionKeys of the same kind.
func (k PartitionKey) Compare(other PartitionKey) int {
	a, b := k.orderKey(), other.orderKey()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// LessOrEqual reports whether k <= other, assuming both share a kind.
func (k PartitionKey) LessOrEqual(other PartitionKey) bool {
	return k.Compare(other) <= 0
}

// String renders a human-readable form, used in logs and error messages.
func (k PartitionKey) String() string {
	switch k.kind {
	case kindHour:
		return "hour:" + k.t.Format("2006-01-02T15")
	case kindDay:
		return "day:" + k.t.Format("2006-01-02")
	case kindMonth:
		return fmt.Sprintf("month:%04d-%02d", k.year, int(k.month))
	case kindYear:
		return fmt.Sprintf("year:%04d", k.year)
	case kindRange:
		return fmt.Sprintf("range:%d", k.rng)
	}
	return "unknown"
}

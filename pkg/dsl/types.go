// SPDX-License-Identifier: Apache-2.0

// Package dsl parses and resolves bqdrift's declarative query format: one
// YAML file per query, with inline, reference, and extended variants for a
// version's schema and invariants.
package dsl

import (
	"time"

	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
)

// RawQueryDef is the direct YAML shape of a declaration file, before
// version sorting or variable resolution.
type RawQueryDef struct {
	Name        string          `yaml:"name"`
	Destination RawDestination  `yaml:"destination"`
	Description string          `yaml:"description,omitempty"`
	Owner       string          `yaml:"owner,omitempty"`
	Tags        []string        `yaml:"tags,omitempty"`
	Versions    []RawVersionDef `yaml:"versions"`
}

// RawDestination is the raw (unvalidated) destination block: cluster is a
// plain field list here, validated into a schema.ClusterConfig at load time.
type RawDestination struct {
	Dataset   string                 `yaml:"dataset"`
	Table     string                 `yaml:"table"`
	Partition schema.PartitionConfig `yaml:"partition"`
	Cluster   []string               `yaml:"cluster,omitempty"`
}

// RawVersionDef is one `versions[]` entry as declared in YAML.
type RawVersionDef struct {
	Version       int            `yaml:"version"`
	EffectiveFrom time.Time      `yaml:"effective_from"`
	Source        string         `yaml:"source"`
	Schema        SchemaRef      `yaml:"schema"`
	Invariants    *InvariantsRef `yaml:"invariants,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	BackfillSince *time.Time     `yaml:"backfill_since,omitempty"`
	Revisions     []RawRevision  `yaml:"revisions,omitempty"`
}

// RawRevision is one `revisions[]` entry within a version.
type RawRevision struct {
	Revision      int        `yaml:"revision"`
	EffectiveFrom time.Time  `yaml:"effective_from"`
	Source        string     `yaml:"source"`
	Reason        string     `yaml:"reason,omitempty"`
	BackfillSince *time.Time `yaml:"backfill_since,omitempty"`
}

// QueryDef is one fully resolved, immutable query declaration.
type QueryDef struct {
	Name        string
	Destination schema.Destination
	Description string
	Owner       string
	Tags        []string
	Versions    []VersionDef
}

// VersionDef is one resolved, immutable declaration line for a query.
type VersionDef struct {
	Version       int
	EffectiveFrom time.Time
	SQLContent    string
	Revisions     []ResolvedRevision
	Description   string
	BackfillSince *time.Time
	Schema        schema.Schema
	Dependencies  []string
	Invariants    invariant.Declaration
}

// ResolvedRevision is one within-version SQL patch, fully resolved.
type ResolvedRevision struct {
	Revision      int
	EffectiveFrom time.Time
	SQLContent    string
	Reason        string
	BackfillSince *time.Time
	Dependencies  []string
}

// GetVersionForDate returns the version effective on the given date: the
// greatest version whose EffectiveFrom is <= date. Versions must already be
// sorted ascending by (EffectiveFrom, Version).
func (q QueryDef) GetVersionForDate(date time.Time) (*VersionDef, bool) {
	var found *VersionDef
	for i := range q.Versions {
		v := &q.Versions[i]
		if v.EffectiveFrom.After(date) {
			break
		}
		found = v
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// GetSQLForDate returns the effective SQL for this version on the given
// date: the greatest revision with EffectiveFrom <= date, falling back to
// the version's base SQL. Revisions must already be sorted ascending.
func (v VersionDef) GetSQLForDate(date time.Time) string {
	sql, _ := v.ActiveRevisionForDate(date)
	return sql
}

// ActiveRevisionForDate returns the same effective SQL as GetSQLForDate,
// alongside the revision number that produced it, or nil when the version's
// base source is still in effect.
func (v VersionDef) ActiveRevisionForDate(date time.Time) (string, *int) {
	sql := v.SQLContent
	var revision *int
	for i, rev := range v.Revisions {
		if rev.EffectiveFrom.After(date) {
			break
		}
		sql = rev.SQLContent
		revision = &v.Revisions[i].Revision
	}
	return sql, revision
}

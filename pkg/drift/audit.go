// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"time"

	"github.com/alexchoi/bqdrift/pkg/checksum"
)

// SourceStatus describes whether a query's on-disk declaration still
// matches what past executions recorded it to be.
type SourceStatus string

const (
	// SourceMatches means the current declaration text hashes to the same
	// yaml_checksum recorded on the most recent execution of this query.
	SourceMatches SourceStatus = "matches"
	// SourceRewritten means the most recent execution recorded a
	// yaml_checksum that differs from the checksum of the declaration text
	// now on disk. Any edit to the text counts, including one that adds a
	// new version or revision; the two cases are not told apart.
	SourceRewritten SourceStatus = "rewritten"
	// SourceUnknown means no execution history exists for this query yet,
	// so there is nothing to audit against.
	SourceUnknown SourceStatus = "unknown"
)

// SourceAuditEntry is the audit outcome for a single query.
type SourceAuditEntry struct {
	QueryName        string
	Status           SourceStatus
	RecordedChecksum string
	CurrentChecksum  string
	LastExecutedAt   time.Time
}

// SourceAuditReport collects an entry per query examined.
type SourceAuditReport struct {
	Entries []SourceAuditEntry
}

// Rewritten returns only the entries flagged as silently rewritten.
func (r SourceAuditReport) Rewritten() []SourceAuditEntry {
	var out []SourceAuditEntry
	for _, e := range r.Entries {
		if e.Status == SourceRewritten {
			out = append(out, e)
		}
	}
	return out
}

// SourceAuditor cross-checks each query's current declaration text against
// the yaml_checksum of its most recently executed partition, surfacing
// declarations whose text changed on disk since that execution. It does not
// inspect the version history, so an edit that adds a version is flagged
// the same way as one that does not. This never affects primary drift classification: a query with a
// rewritten source is still classified by Detector on its content
// checksums, which is what actually determines whether a rerun is needed.
type SourceAuditor struct{}

// NewSourceAuditor returns a ready-to-use auditor.
func NewSourceAuditor() *SourceAuditor {
	return &SourceAuditor{}
}

// Audit compares yamlText (current on-disk text, keyed by query name)
// against the latest stored PartitionState per query.
func (a *SourceAuditor) Audit(yamlText map[string]string, stored []PartitionState) SourceAuditReport {
	latest := make(map[string]PartitionState)
	for _, s := range stored {
		existing, ok := latest[s.QueryName]
		if !ok || s.ExecutedAt.After(existing.ExecutedAt) {
			latest[s.QueryName] = s
		}
	}

	var report SourceAuditReport
	for name, text := range yamlText {
		recorded, ok := latest[name]
		if !ok {
			report.Entries = append(report.Entries, SourceAuditEntry{
				QueryName: name,
				Status:    SourceUnknown,
			})
			continue
		}

		current := checksum.Compute("", "", text).YAML
		status := SourceMatches
		if current != recorded.YAMLChecksum {
			status = SourceRewritten
		}

		report.Entries = append(report.Entries, SourceAuditEntry{
			QueryName:        name,
			Status:           status,
			RecordedChecksum: recorded.YAMLChecksum,
			CurrentChecksum:  current,
			LastExecutedAt:   recorded.ExecutedAt,
		})
	}

	return report
}

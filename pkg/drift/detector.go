// SPDX-License-Identifier: Apache-2.0

package drift

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alexchoi/bqdrift/pkg/checksum"
	"github.com/alexchoi/bqdrift/pkg/dsl"
)

// maxDetectionDays caps a single detect() call's date range, mirroring the
// original implementation's guard against runaway full-history scans.
const maxDetectionDays = 365 * 10

type stateKey struct {
	queryName string
	date      time.Time
}

// Detector classifies partitions for a fixed set of queries against their
// stored execution history. It is read-only: it never mutates stored state.
type Detector struct {
	queries  map[string]dsl.QueryDef
	yamlText map[string]string
}

// NewDetector indexes queries by name for repeated Detect calls.
func NewDetector(queries []dsl.QueryDef, yamlText map[string]string) *Detector {
	indexed := make(map[string]dsl.QueryDef, len(queries))
	for _, q := range queries {
		indexed[q.Name] = q
	}
	return &Detector{queries: indexed, yamlText: yamlText}
}

// Detect classifies every (query, date) pair in [from, to] against
// stored. The outer loop over queries runs concurrently; within one query,
// date iteration is sequential so it can share a per-version checksum
// cache. Results are appended to the report in completion order, which is
// unordered across queries by design.
func (d *Detector) Detect(stored []PartitionState, from, to time.Time) (Report, error) {
	numDays := int(to.Sub(from).Hours() / 24)
	if numDays < 0 {
		numDays = 0
	}
	if numDays > maxDetectionDays {
		return Report{}, fmt.Errorf("date range too large: %d days exceeds maximum of %d days", numDays, maxDetectionDays)
	}

	storedMap := buildStateIndex(stored)

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)

	for name, query := range d.queries {
		wg.Add(1)
		go func(name string, query dsl.QueryDef) {
			defer wg.Done()

			yamlContent := d.yamlText[name]
			checksumCache := make(map[int]checksum.Checksums)

			var results []PartitionDrift
			for current := from; !current.After(to); current = current.AddDate(0, 0, 1) {
				drift := d.detectPartitionCached(name, query, current, storedMap[stateKey{name, current}], yamlContent, checksumCache)
				results = append(results, drift)
			}

			mu.Lock()
			for _, r := range results {
				report.Add(r)
			}
			mu.Unlock()
		}(name, query)
	}
	wg.Wait()

	return report, nil
}

func (d *Detector) detectPartitionCached(
	queryName string,
	query dsl.QueryDef,
	partitionDate time.Time,
	stored *PartitionState,
	yamlContent string,
	checksumCache map[int]checksum.Checksums,
) PartitionDrift {
	version, hasVersion := query.GetVersionForDate(partitionDate)

	var (
		state           State
		executedVersion *int
	)

	switch {
	case !hasVersion:
		state = StateNeverRun
	case stored == nil:
		state = StateNeverRun
	case stored.Status == StatusFailed:
		state = StateFailed
		v := stored.Version
		executedVersion = &v
	default:
		current, ok := checksumCache[version.Version]
		if !ok {
			current = checksum.Compute(version.GetSQLForDate(time.Now().UTC()), version.Schema.Canonical(), yamlContent)
			checksumCache[version.Version] = current
		}

		v := stored.Version
		executedVersion = &v

		switch {
		case current.Schema != stored.SchemaChecksum:
			state = StateSchemaChanged
		case current.SQL != stored.SQLChecksum:
			state = StateSqlChanged
		case version.Version != stored.Version:
			state = StateVersionUpgraded
		default:
			state = StateCurrent
		}
	}

	var executedSQLB64 string
	if stored != nil {
		executedSQLB64 = stored.ExecutedSQLB64
	}

	var currentSQL string
	if state.NeedsRerun() && hasVersion {
		currentSQL = version.GetSQLForDate(time.Now().UTC())
	}

	currentVersion := 0
	if hasVersion {
		currentVersion = version.Version
	}

	return PartitionDrift{
		QueryName:       queryName,
		PartitionDate:   partitionDate,
		State:           state,
		CurrentVersion:  currentVersion,
		ExecutedVersion: executedVersion,
		ExecutedSQLB64:  executedSQLB64,
		CurrentSQL:      currentSQL,
	}
}

// buildStateIndex collapses allStates to the latest row per (query,
// partition_date): earlier rows are silently shadowed, never deleted. No
// garbage collection happens here; that is an external store concern.
func buildStateIndex(allStates []PartitionState) map[stateKey]*PartitionState {
	index := make(map[stateKey]*PartitionState, len(allStates))
	for i := range allStates {
		s := &allStates[i]
		key := stateKey{s.QueryName, s.PartitionDate}
		if existing, ok := index[key]; ok && !existing.ExecutedAt.Before(s.ExecutedAt) {
			continue
		}
		index[key] = s
	}
	return index
}

// DetectUpstreamChanged runs as a separate pass over partitions already
// classified (typically Current), rewriting those whose recorded upstream
// timestamp is now stale. It is kept separate from Detect because folding
// it in would require either a second full-state index per worker or
// serializing the whole per-query detection loop.
func (d *Detector) DetectUpstreamChanged(stored PartitionState, allStates []PartitionState) (string, bool) {
	index := buildStateIndex(allStates)
	return detectUpstreamChangedIndexed(stored, index)
}

func detectUpstreamChangedIndexed(stored PartitionState, index map[stateKey]*PartitionState) (string, bool) {
	names := make([]string, 0, len(stored.UpstreamStates))
	for name := range stored.UpstreamStates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, upstreamName := range names {
		recordedTime := stored.UpstreamStates[upstreamName]
		upstream, ok := index[stateKey{upstreamName, stored.PartitionDate}]
		if !ok {
			continue
		}
		if upstream.ExecutedAt.After(recordedTime) {
			return upstreamName, true
		}
	}
	return "", false
}

// RewriteUpstreamChanged reclassifies d as UpstreamChanged with CausedBy set,
// applied by the caller only to drifts already at StateCurrent.
func RewriteUpstreamChanged(drift PartitionDrift, causedBy string) PartitionDrift {
	drift.State = StateUpstreamChanged
	drift.CausedBy = causedBy
	return drift
}

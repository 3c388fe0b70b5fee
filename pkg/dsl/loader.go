// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/alexchoi/bqdrift/pkg/bqerr"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
)

// QueryLoader orchestrates preprocess -> parse -> resolve for one file or
// a whole directory of declarations.
type QueryLoader struct {
	resolver     *Resolver
	preprocessor *Preprocessor
	logger       bqlog.Logger
}

// NewQueryLoader returns a QueryLoader that logs via l (pass bqlog.NewNoop()
// in tests).
func NewQueryLoader(l bqlog.Logger) *QueryLoader {
	return &QueryLoader{resolver: NewResolver(), preprocessor: NewPreprocessor(), logger: l}
}

// LoadDir loads every `.yaml` declaration file under path, returning the
// resolved queries and the exact post-preprocess text used for hashing
// (keyed by query name). A file that fails to read is skipped with a
// warning; a file that parses but fails resolution aborts the whole load
// with a typed error identifying the file.
func (ql *QueryLoader) LoadDir(path string) ([]QueryDef, map[string]string, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".yaml" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, &bqerr.IOFailure{Path: path, Err: err}
	}
	sort.Strings(files)

	var queries []QueryDef
	verbatim := make(map[string]string, len(files))

	for _, f := range files {
		query, text, err := ql.loadQueryFile(f)
		if err != nil {
			var ioErr *bqerr.IOFailure
			if isIOFailure(err, &ioErr) {
				ql.logger.Error("skipping unreadable declaration", "path", f, "error", err.Error())
				continue
			}
			return nil, nil, err
		}
		queries = append(queries, query)
		verbatim[query.Name] = text
	}

	return queries, verbatim, nil
}

// LoadQuery loads and resolves a single declaration file.
func (ql *QueryLoader) LoadQuery(path string) (QueryDef, error) {
	query, _, err := ql.loadQueryFile(path)
	return query, err
}

func (ql *QueryLoader) loadQueryFile(path string) (QueryDef, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return QueryDef{}, "", &bqerr.IOFailure{Path: path, Err: err}
	}

	baseDir := filepath.Dir(path)
	processed, err := ql.preprocessor.Process(string(content), baseDir)
	if err != nil {
		return QueryDef{}, "", &bqerr.DSLParseFailure{Path: path, Err: err}
	}

	var raw RawQueryDef
	if err := yaml.Unmarshal([]byte(processed), &raw); err != nil {
		return QueryDef{}, "", &bqerr.DSLParseFailure{Path: path, Err: err}
	}

	query, err := ql.resolveQuery(raw)
	if err != nil {
		return QueryDef{}, "", fmt.Errorf("resolve %q: %w", path, err)
	}

	return query, processed, nil
}

func (ql *QueryLoader) resolveQuery(raw RawQueryDef) (QueryDef, error) {
	sort.SliceStable(raw.Versions, func(i, j int) bool {
		a, b := raw.Versions[i], raw.Versions[j]
		if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
			return a.EffectiveFrom.Before(b.EffectiveFrom)
		}
		return a.Version < b.Version
	})

	resolvedSchemas := make(map[int]schema.Schema, len(raw.Versions))
	resolvedInvariants := make(map[int]invariant.Declaration, len(raw.Versions))
	versions := make([]VersionDef, 0, len(raw.Versions))

	for _, rv := range raw.Versions {
		resolvedSchema, err := ql.resolver.ResolveSchema(rv.Schema, resolvedSchemas)
		if err != nil {
			return QueryDef{}, err
		}

		dependencies := ExtractDependencies(rv.Source)

		revisions, err := ql.resolveRevisions(rv.Revisions)
		if err != nil {
			return QueryDef{}, err
		}

		resolvedInv, err := ql.resolver.ResolveInvariants(rv.Invariants, resolvedInvariants)
		if err != nil {
			return QueryDef{}, err
		}

		resolvedSchemas[rv.Version] = resolvedSchema
		resolvedInvariants[rv.Version] = resolvedInv

		versions = append(versions, VersionDef{
			Version:       rv.Version,
			EffectiveFrom: rv.EffectiveFrom,
			SQLContent:    rv.Source,
			Revisions:     revisions,
			Description:   rv.Description,
			BackfillSince: rv.BackfillSince,
			Schema:        resolvedSchema,
			Dependencies:  dependencies,
			Invariants:    resolvedInv,
		})
	}

	var cluster *schema.ClusterConfig
	if len(raw.Destination.Cluster) > 0 {
		c, err := schema.NewClusterConfig(raw.Destination.Cluster)
		if err != nil {
			return QueryDef{}, &bqerr.ValidationFailureError{Query: raw.Name, Issues: []string{err.Error()}}
		}
		cluster = c
	}

	return QueryDef{
		Name: raw.Name,
		Destination: schema.Destination{
			Dataset:   raw.Destination.Dataset,
			Table:     raw.Destination.Table,
			Partition: &raw.Destination.Partition,
			Cluster:   cluster,
		},
		Description: raw.Description,
		Owner:       raw.Owner,
		Tags:        raw.Tags,
		Versions:    versions,
	}, nil
}

func (ql *QueryLoader) resolveRevisions(revisions []RawRevision) ([]ResolvedRevision, error) {
	resolved := make([]ResolvedRevision, 0, len(revisions))
	for _, rev := range revisions {
		resolved = append(resolved, ResolvedRevision{
			Revision:      rev.Revision,
			EffectiveFrom: rev.EffectiveFrom,
			SQLContent:    rev.Source,
			Reason:        rev.Reason,
			BackfillSince: rev.BackfillSince,
			Dependencies:  ExtractDependencies(rev.Source),
		})
	}
	return resolved, nil
}

func isIOFailure(err error, target **bqerr.IOFailure) bool {
	if e, ok := err.(*bqerr.IOFailure); ok {
		*target = e
		return true
	}
	return false
}

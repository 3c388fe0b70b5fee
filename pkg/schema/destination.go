// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Destination identifies the warehouse table a query materializes into.
type Destination struct {
	Dataset   string           `json:"dataset" yaml:"dataset"`
	Table     string           `json:"table" yaml:"table"`
	Partition *PartitionConfig `json:"partition,omitempty" yaml:"partition,omitempty"`
	Cluster   *ClusterConfig   `json:"cluster,omitempty" yaml:"cluster,omitempty"`
}

// QualifiedName returns the backtick-quoted `dataset.table` reference used in
// generated SQL.
func (d Destination) QualifiedName() string {
	return fmt.Sprintf("`%s.%s`", d.Dataset, d.Table)
}

// DecoratedName returns the qualified name with the partition's decorator
// suffix appended, e.g. `dataset.table$20240301`, for use in truncate-insert
// statements that target a single partition directly.
func (d Destination) DecoratedName(key PartitionKey) string {
	return fmt.Sprintf("`%s.%s%s`", d.Dataset, d.Table, key.Decorator())
}

// PartitionField returns the configured partition column name, or ("",
// false) if this destination is unpartitioned.
func (d Destination) PartitionField() (string, bool) {
	if d.Partition == nil {
		return "", false
	}
	return d.Partition.FieldName()
}

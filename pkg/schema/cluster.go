// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// maxClusterFields mirrors BigQuery's own limit on the number of clustering
// columns a table may declare.
const maxClusterFields = 4

// ClusterConfig describes the clustering columns for a destination table.
type ClusterConfig struct {
	Fields []string `json:"fields" yaml:"fields"`
}

// NewClusterConfig validates and builds a ClusterConfig.
func NewClusterConfig(fields []string) (*ClusterConfig, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("cluster config requires at least one field")
	}
	if len(fields) > maxClusterFields {
		return nil, fmt.Errorf("cluster config allows at most %d fields, got %d", maxClusterFields, len(fields))
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			return nil, fmt.Errorf("cluster field %q is duplicated", f)
		}
		seen[f] = true
	}
	return &ClusterConfig{Fields: append([]string(nil), fields...)}, nil
}

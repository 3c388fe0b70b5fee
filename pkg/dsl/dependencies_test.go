// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"reflect"
	"testing"
)

func TestExtractDependencies(t *testing.T) {
	sql := "SELECT o.id, c.name FROM `proj.analytics.Orders` o\nJOIN proj.analytics.customers c ON c.id = o.customer_id\nJOIN `proj.analytics.orders` extra ON FALSE"

	got := ExtractDependencies(sql)
	want := []string{"proj.analytics.customers", "proj.analytics.orders"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractDependenciesNoMatches(t *testing.T) {
	got := ExtractDependencies("SELECT 1")
	if len(got) != 0 {
		t.Errorf("expected no dependencies, got %v", got)
	}
}

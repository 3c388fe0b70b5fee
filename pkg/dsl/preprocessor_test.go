// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreprocessorExpandsInclude(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fields.yaml"), []byte("- name: id\n  type: STRING\n  mode: REQUIRED\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	content := "schema:\n!include fields.yaml\n"
	p := NewPreprocessor()

	out, err := p.Process(content, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "name: id") {
		t.Errorf("expected included content to appear, got %q", out)
	}
}

func TestPreprocessorDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("!include b.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("!include a.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPreprocessor()
	content, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Process(string(content), dir)
	if err == nil {
		t.Fatal("expected a cycle-detection error")
	}
}

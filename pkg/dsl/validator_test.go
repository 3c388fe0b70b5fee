// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

const schemaTestDataDir = "testdata/schema"

func TestDeclarationSchemaValidation(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	files, err := os.ReadDir(schemaTestDataDir)
	if err != nil {
		t.Fatalf("read testdata dir: %v", err)
	}

	for _, file := range files {
		file := file
		t.Run(file.Name(), func(t *testing.T) {
			ac, err := txtar.ParseFile(filepath.Join(schemaTestDataDir, file.Name()))
			if err != nil {
				t.Fatalf("parse txtar: %v", err)
			}
			if len(ac.Files) != 2 {
				t.Fatalf("expected 2 files in archive, got %d", len(ac.Files))
			}

			var doc any
			if err := json.Unmarshal(ac.Files[0].Data, &doc); err != nil {
				t.Fatalf("unmarshal doc: %v", err)
			}

			shouldValidate, err := strconv.ParseBool(strings.TrimSpace(string(ac.Files[1].Data)))
			if err != nil {
				t.Fatalf("parse expected validity: %v", err)
			}

			err = v.Validate(doc)
			if shouldValidate && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !shouldValidate && err == nil {
				t.Errorf("expected %q to be invalid", ac.Files[0].Name)
			}
		})
	}
}

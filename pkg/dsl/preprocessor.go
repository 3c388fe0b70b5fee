// SPDX-License-Identifier: Apache-2.0

package dsl

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var includePattern = regexp.MustCompile(`^\s*!include\s+(\S+)\s*$`)

// Preprocessor expands `!include path` directives before a declaration file
// is parsed as YAML. It is purely textual: no YAML structure is understood
// at this stage, only line-oriented substitution.
type Preprocessor struct{}

// NewPreprocessor returns a ready-to-use Preprocessor.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Process expands every `!include` directive in content, resolved relative
// to baseDir, recursively. Cycles are detected and reported as an error
// rather than looping forever.
func (p *Preprocessor) Process(content, baseDir string) (string, error) {
	return p.process(content, baseDir, map[string]bool{})
}

func (p *Preprocessor) process(content, baseDir string, seen map[string]bool) (string, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		m := includePattern.FindStringSubmatch(line)
		if m == nil {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		includePath := m[1]
		resolved := includePath
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, includePath)
		}
		resolved, err := filepath.Abs(resolved)
		if err != nil {
			return "", fmt.Errorf("resolve include path %q: %w", includePath, err)
		}

		if seen[resolved] {
			return "", fmt.Errorf("include cycle detected at %q", resolved)
		}

		included, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("read included file %q: %w", resolved, err)
		}

		nextSeen := make(map[string]bool, len(seen)+1)
		for k := range seen {
			nextSeen[k] = true
		}
		nextSeen[resolved] = true

		expanded, err := p.process(string(included), filepath.Dir(resolved), nextSeen)
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan content for includes: %w", err)
	}

	return out.String(), nil
}

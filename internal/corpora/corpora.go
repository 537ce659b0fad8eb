// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package corpora runs golden-file tests: every input file under a directory
// is one test case, and its expected outputs sit next to it.
package corpora

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
)

// Corpus describes a directory of test cases. This is table-driven testing
// where the table lives in the file system.
type Corpus struct {
	// The root of the test data directory, relative to the file that calls
	// [Corpus.Run].
	Root string

	// An environment variable holding a glob of test cases to refresh. Cases
	// matching it have their output files rewritten instead of checked, and
	// the test fails so that a refresh is never mistaken for a pass.
	Refresh string

	// The file extension (without a dot) of test case inputs, e.g. "yaml".
	Extension string

	// The outputs of each case. The expected value of output n of case
	// foo.yaml is the contents of foo.yaml.<Outputs[n].Extension>, or the
	// empty string if that file does not exist.
	Outputs []Output

	// Test runs one case and returns one string per element of Outputs.
	Test func(t *testing.T, name string, input []byte) []string
}

// Output is one output of a test case.
type Output struct {
	Extension string

	// May be nil, in which case outputs are compared byte-for-byte.
	Compare Compare
}

// Compare compares a test output with its expectation. Returns the empty
// string if they match, and a description of the mismatch otherwise.
type Compare func(got, want string) string

// Run runs every case in the corpus as a subtest.
func (c Corpus) Run(t *testing.T) {
	testDir := callerDir(0)
	root := filepath.Join(testDir, c.Root)

	cases, err := doublestar.Glob(os.DirFS(root), "**/*."+c.Extension)
	if err != nil {
		t.Fatalf("corpora: listing %q: %v", root, err)
	}
	if len(cases) == 0 {
		t.Fatalf("corpora: no *.%s files in %q", c.Extension, root)
	}

	var refresh string
	if c.Refresh != "" {
		refresh = os.Getenv(c.Refresh)
		if !doublestar.ValidatePattern(refresh) {
			t.Fatalf("corpora: %s=%q is not a valid glob", c.Refresh, refresh)
		}
	}
	if refresh != "" {
		t.Logf("corpora: refreshing cases matching %s=%s", c.Refresh, refresh)
		t.Fail()
	}

	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(root, filepath.FromSlash(name))
			input, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("corpora: reading input: %v", err)
			}

			results := c.Test(t, name, input)
			if len(results) != len(c.Outputs) {
				t.Fatalf("corpora: test returned %d outputs, want %d", len(results), len(c.Outputs))
			}

			rewrite, _ := doublestar.Match(refresh, name)
			for i, output := range c.Outputs {
				path := path + "." + output.Extension
				if rewrite {
					if err := write(path, results[i]); err != nil {
						t.Errorf("corpora: refreshing %q: %v", path, err)
					}
					continue
				}

				want, err := os.ReadFile(path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					t.Errorf("corpora: reading output: %v", err)
					continue
				}

				compare := output.Compare
				if compare == nil {
					compare = Diff
				}
				if msg := compare(results[i], string(want)); msg != "" {
					t.Errorf("output mismatch for %q:\n%s", path, msg)
				}
			}
		})
	}
}

// write replaces the file at path with data, removing it if data is empty.
func write(path, data string) error {
	if data == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, []byte(data), 0o644)
}

// Diff is the default [Compare]: an exact match, reported as a colorized
// unified diff.
func Diff(got, want string) string {
	if got == want {
		return ""
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("diff failed: %v", err)
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+"):
			lines[i] = "\033[1;92m" + line + "\033[0m"
		case strings.HasPrefix(line, "-"):
			lines[i] = "\033[1;91m" + line + "\033[0m"
		}
	}
	return strings.Join(lines, "\n")
}

func callerDir(skip int) string {
	_, file, _, ok := runtime.Caller(skip + 2)
	if !ok {
		panic("corpora: could not determine test file's directory")
	}
	return filepath.Dir(file)
}

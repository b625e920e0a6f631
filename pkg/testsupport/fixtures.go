// Package testsupport holds fixture and golden file helpers for tests that
// exchange dehydrated query state.
package testsupport

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/goliatone/go-querysync/cache"
)

// UpdateEnv names the environment variable that rewrites golden files
// instead of comparing against them.
const UpdateEnv = "UPDATE_GOLDEN"

// FixturePath returns the path of a file under the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath returns the path of a golden file under testdata/golden.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}

// LoadFixture reads a fixture file or fails the test.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load fixture %s: %v", path, err)
	}
	return data
}

// LoadStateFixture reads a dehydrated state stored as JSON.
func LoadStateFixture(t testing.TB, path string) cache.DehydratedState {
	t.Helper()

	state, err := cache.UnmarshalState(LoadFixture(t, path), cache.FormatJSON)
	if err != nil {
		t.Fatalf("decode state fixture %s: %v", path, err)
	}
	return state
}

// StableState returns a copy of state with timestamps cleared and queries
// ordered by signature key, so it can be compared across runs.
func StableState(state cache.DehydratedState) cache.DehydratedState {
	stable := cache.DehydratedState{Queries: make([]cache.DehydratedQuery, len(state.Queries))}
	for i, q := range state.Queries {
		q.State.UpdatedAt = time.Time{}
		stable.Queries[i] = q
	}
	sort.SliceStable(stable.Queries, func(i, j int) bool {
		return stable.Queries[i].Signature(nil).Key() < stable.Queries[j].Signature(nil).Key()
	})
	return stable
}

// CompareWithGolden compares actual with the golden file at path. A missing
// golden file, or UPDATE_GOLDEN=1, writes actual instead.
func CompareWithGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	switch {
	case os.Getenv(UpdateEnv) == "1", os.IsNotExist(err):
		t.Logf("writing golden file %s", path)
		writeGolden(t, path, actual)
		return
	case err != nil:
		t.Fatalf("read golden file %s: %v", path, err)
	}

	if !bytes.Equal(actual, expected) {
		t.Errorf("golden mismatch for %s:\nwant:\n%s\ngot:\n%s", path, expected, actual)
	}
}

// CompareStateWithGolden compares the stable form of state, indented JSON,
// with a golden file.
func CompareStateWithGolden(t testing.TB, path string, state cache.DehydratedState) {
	t.Helper()

	data, err := json.MarshalIndent(StableState(state), "", "  ")
	if err != nil {
		t.Fatalf("marshal state for %s: %v", path, err)
	}
	CompareWithGolden(t, path, append(data, '\n'))
}

func writeGolden(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create golden dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden file %s: %v", path, err)
	}
}

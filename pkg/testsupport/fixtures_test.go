package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-querysync/cache"
)

func TestLoadStateFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"queries":[{"name":"getUserByUsername","params":{"username":"ada"},"state":{"status":"success","data":{"username":"ada"},"updatedAt":"2024-05-01T12:00:00Z"}}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write state file: %v", err)
	}

	state := LoadStateFixture(t, path)
	if len(state.Queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(state.Queries))
	}

	q := state.Queries[0]
	want := cache.SignatureOf("getUserByUsername", map[string]any{"username": "ada"})
	if q.Signature(nil) != want {
		t.Errorf("signature = %s, want %s", q.Signature(nil), want)
	}
	if q.State.Status != cache.StatusSuccess {
		t.Errorf("status = %s", q.State.Status)
	}
}

func TestStableState(t *testing.T) {
	now := time.Now()
	state := cache.DehydratedState{Queries: []cache.DehydratedQuery{
		{Name: "getUserByUsername", Params: json.RawMessage(`{"username":"grace"}`), State: cache.EntrySnapshot{Status: cache.StatusSuccess, UpdatedAt: now}},
		{Name: "getAllPosts", State: cache.EntrySnapshot{Status: cache.StatusSuccess, UpdatedAt: now}},
		{Name: "getUserByUsername", Params: json.RawMessage(`{"username":"ada"}`), State: cache.EntrySnapshot{Status: cache.StatusSuccess, UpdatedAt: now}},
	}}

	stable := StableState(state)

	var keys []string
	for _, q := range stable.Queries {
		keys = append(keys, q.Signature(nil).Key())
		if !q.State.UpdatedAt.IsZero() {
			t.Errorf("%s: timestamp not cleared", q.Name)
		}
	}
	want := []string{
		"getAllPosts",
		`getUserByUsername::{"username":"ada"}`,
		`getUserByUsername::{"username":"grace"}`,
	}
	if strings.Join(keys, "|") != strings.Join(want, "|") {
		t.Errorf("order = %v, want %v", keys, want)
	}
	if state.Queries[0].State.UpdatedAt.IsZero() {
		t.Error("input state must not be modified")
	}
}

func TestCompareWithGolden_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "compare.golden")
	content := []byte("matching content")

	CompareWithGolden(t, path, content)

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("golden file should have been created: %v", err)
	}
	if string(written) != string(content) {
		t.Errorf("written = %q", written)
	}

	CompareWithGolden(t, path, content)
}

func TestCompareWithGolden_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.golden")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	t.Setenv(UpdateEnv, "1")

	CompareWithGolden(t, path, []byte("new"))

	if got := string(LoadFixture(t, path)); got != "new" {
		t.Errorf("golden = %q, want rewritten", got)
	}
}

func TestCompareStateWithGolden_IgnoresTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.golden")
	state := cache.DehydratedState{Queries: []cache.DehydratedQuery{{
		Name: "getAllPosts",
		State: cache.EntrySnapshot{
			Status:    cache.StatusSuccess,
			Data:      json.RawMessage(`[]`),
			UpdatedAt: time.Now(),
		},
	}}}

	CompareStateWithGolden(t, path, state)

	written := string(LoadFixture(t, path))
	if !strings.Contains(written, `"updatedAt": "0001-01-01T00:00:00Z"`) {
		t.Errorf("timestamp should be cleared, got:\n%s", written)
	}

	later := cache.DehydratedState{Queries: []cache.DehydratedQuery{state.Queries[0]}}
	later.Queries[0].State.UpdatedAt = time.Now().Add(time.Hour)
	CompareStateWithGolden(t, path, later)
}

func TestPaths(t *testing.T) {
	if got, want := FixturePath("state.json"), filepath.Join("testdata", "state.json"); got != want {
		t.Errorf("FixturePath = %q, want %q", got, want)
	}
	if got, want := GoldenPath("page.golden"), filepath.Join("testdata", "golden", "page.golden"); got != want {
		t.Errorf("GoldenPath = %q, want %q", got, want)
	}
}

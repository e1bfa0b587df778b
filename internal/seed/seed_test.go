package seed

import (
	"context"
	"testing"

	"github.com/git-pkgs/registry-mirror/internal/core"
)

func TestParseExplicitList(t *testing.T) {
	tests := []struct {
		spec string
		want core.Dependency
	}{
		{"left-pad", core.Dependency{Name: "left-pad", Requirements: "latest"}},
		{"left-pad@1.3.0", core.Dependency{Name: "left-pad", Requirements: "1.3.0"}},
		{"@a/b@latest", core.Dependency{Name: "@a/b", Requirements: "latest"}},
		{"@a/b@^1.0.0", core.Dependency{Name: "@a/b", Requirements: "^1.0.0"}},
		{"@scope/name", core.Dependency{Name: "@scope/name", Requirements: "latest"}},
		{"pkg:npm/lodash@4.17.21", core.Dependency{Name: "lodash", Requirements: "4.17.21"}},
		{"pkg:npm/lodash", core.Dependency{Name: "lodash", Requirements: "latest"}},
		{"pkg:npm/%40babel/core@7.24.0", core.Dependency{Name: "@babel/core", Requirements: "7.24.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			deps, err := ParseExplicitList([]string{tt.spec})
			if err != nil {
				t.Fatalf("ParseExplicitList(%q) error = %v", tt.spec, err)
			}
			if len(deps) != 1 || deps[0] != tt.want {
				t.Errorf("ParseExplicitList(%q) = %+v, want %+v", tt.spec, deps, tt.want)
			}
		})
	}
}

func TestParseExplicitList_Invalid(t *testing.T) {
	for _, spec := range []string{"", "@", "name@"} {
		if _, err := ParseExplicitList([]string{spec}); err == nil {
			t.Errorf("ParseExplicitList(%q) expected error, got nil", spec)
		}
	}
}

func TestParseManifestFile(t *testing.T) {
	data := []byte(`{"dependencies": {"left-pad": "^1.0.0"}}`)
	deps, err := ParseManifestFile(data)
	if err != nil {
		t.Fatalf("ParseManifestFile() error = %v", err)
	}
	if len(deps) != 1 || deps[0].Name != "left-pad" || deps[0].Requirements != "^1.0.0" {
		t.Errorf("ParseManifestFile() = %+v", deps)
	}
}

func TestParseManifestFile_MissingDependenciesIsFatal(t *testing.T) {
	data := []byte(`{"name": "no-deps-field"}`)
	if _, err := ParseManifestFile(data); err == nil {
		t.Fatal("ParseManifestFile() expected error for missing dependencies field")
	}
}

type fakePageFetcher struct {
	calls [][2]int
	total int
}

func (f *fakePageFetcher) FetchPage(ctx context.Context, size, offset int) ([]Entry, error) {
	f.calls = append(f.calls, [2]int{size, offset})
	entries := make([]Entry, 0, size)
	for i := 0; i < size && offset+i < f.total; i++ {
		entries = append(entries, Entry{Name: "pkg", Version: "1.0.0"})
	}
	return entries, nil
}

// B6: quantity 5300 is clamped to 5250.
func TestFetchTopN_ClampsToMax(t *testing.T) {
	f := &fakePageFetcher{total: MaxTopN}
	deps, err := FetchTopN(context.Background(), f, 5300)
	if err != nil {
		t.Fatalf("FetchTopN() error = %v", err)
	}
	if len(deps) != MaxTopN {
		t.Errorf("FetchTopN(5300) returned %d entries, want %d", len(deps), MaxTopN)
	}
}

// B6: quantity 251 issues two pages of sizes 250 and 1.
func TestFetchTopN_PagesCorrectly(t *testing.T) {
	f := &fakePageFetcher{total: 251}
	deps, err := FetchTopN(context.Background(), f, 251)
	if err != nil {
		t.Fatalf("FetchTopN() error = %v", err)
	}
	if len(deps) != 251 {
		t.Fatalf("FetchTopN(251) returned %d entries, want 251", len(deps))
	}
	if len(f.calls) != 2 {
		t.Fatalf("FetchTopN(251) issued %d page requests, want 2: %v", len(f.calls), f.calls)
	}
	if f.calls[0] != [2]int{250, 0} || f.calls[1] != [2]int{1, 250} {
		t.Errorf("FetchTopN(251) pages = %v, want [{250 0} {1 250}]", f.calls)
	}
}

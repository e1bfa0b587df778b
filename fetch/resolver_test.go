package fetch

import "testing"

func TestResolveArtifact(t *testing.T) {
	tests := []struct {
		name, version string
		wantURL       string
		wantFilename  string
	}{
		{
			name: "lodash", version: "4.17.21",
			wantURL:      "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz",
			wantFilename: "lodash-4.17.21.tgz",
		},
		{
			name: "@babel/core", version: "7.23.0",
			wantURL:      "https://registry.npmjs.org/@babel/core/-/core-7.23.0.tgz",
			wantFilename: "core-7.23.0.tgz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ResolveArtifact("https://registry.npmjs.org", tt.name, tt.version)
			if info.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", info.URL, tt.wantURL)
			}
			if info.Filename != tt.wantFilename {
				t.Errorf("Filename = %q, want %q", info.Filename, tt.wantFilename)
			}
		})
	}
}

func TestResolveArtifact_TrimsTrailingSlashOnBase(t *testing.T) {
	info := ResolveArtifact("https://registry.npmjs.org/", "lodash", "4.17.21")
	if info.URL != "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz" {
		t.Errorf("URL = %q", info.URL)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/path/to/file.tar.gz", "file.tar.gz"},
		{"https://example.com/file.zip", "file.zip"},
		{"file.txt", "file.txt"},
	}

	for _, tt := range tests {
		got := filenameFromURL(tt.url)
		if got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

package coerce

import "testing"

func TestQuery(t *testing.T) {
	tests := []struct {
		rng  string
		want string
	}{
		{"1.2.3", "1.2.3"},
		{"1.2", "1.2.0"},
		{"^1.2.3", "1.2.3"},
		{"~1.2.3", "1.2.3"},
		{"^1.2", "1.2.0"},
		{"garbage", Latest},
		{"latest", Latest},
		{"", Latest},
		{"next", Latest},
		{"1.x", "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			if got := Query(tt.rng); got != tt.want {
				t.Errorf("Query(%q) = %q, want %q", tt.rng, got, tt.want)
			}
		})
	}
}

func TestIsConcrete(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"1.2.3", true},
		{"1.2.3-beta.1", true},
		{"1.2", false},
		{"^1.2.3", false},
		{"latest", false},
	}

	for _, tt := range tests {
		if got := IsConcrete(tt.version); got != tt.want {
			t.Errorf("IsConcrete(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

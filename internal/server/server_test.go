package server

import (
	"strings"
	"testing"

	"mcpdocs/internal/store"
)

func TestStartupMessageForms(t *testing.T) {
	cases := []struct {
		name      string
		available []string
		pending   []string
		contains  []string
		excludes  []string
	}{
		{
			name:      "no packages",
			contains:  []string{"No package documentation is currently available", "add_package"},
			excludes:  []string{"pending"},
		},
		{
			name:      "single package",
			available: []string{"alpha"},
			contains:  []string{"the alpha package", "query_docs"},
		},
		{
			name:      "multiple packages",
			available: []string{"alpha", "beta", "gamma"},
			contains:  []string{"3 packages", "alpha, beta, gamma"},
		},
		{
			name:      "pending population",
			available: []string{"alpha"},
			pending:   []string{"beta", "gamma"},
			contains:  []string{"alpha", "Population is pending for: beta, gamma"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := startupMessage(tc.available, tc.pending)
			for _, want := range tc.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("message %q missing %q", msg, want)
				}
			}
			for _, bad := range tc.excludes {
				if strings.Contains(msg, bad) {
					t.Errorf("message %q should not contain %q", msg, bad)
				}
			}
		})
	}
}

func TestFilterConfigs(t *testing.T) {
	configs := []store.PackageConfig{
		{Name: "alpha"}, {Name: "beta"}, {Name: "gamma"},
	}

	if got := filterConfigs(configs, nil, false); len(got) != 3 {
		t.Errorf("empty filter kept %d configs", len(got))
	}
	if got := filterConfigs(configs, []string{"beta"}, true); len(got) != 3 {
		t.Errorf("--all should override the name filter, kept %d", len(got))
	}

	got := filterConfigs(configs, []string{"beta", "gamma"}, false)
	if len(got) != 2 || got[0].Name != "beta" || got[1].Name != "gamma" {
		t.Errorf("filtered = %v", got)
	}
}

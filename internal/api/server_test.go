package api

import "testing"

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		raw, owner, name string
		wantErr          bool
	}{
		{"https://github.com/acme/widgets", "acme", "widgets", false},
		{"https://github.com/acme/widgets.git", "acme", "widgets", false},
		{"https://github.com/acme/widgets/", "acme", "widgets", false},
		{"not-a-url-at-all", "", "", true},
		{"https://github.com/acme", "", "", true},
	}
	for _, c := range cases {
		owner, name, err := parseRepoURL(c.raw)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseRepoURL(%q): expected error", c.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRepoURL(%q): unexpected error: %v", c.raw, err)
			continue
		}
		if owner != c.owner || name != c.name {
			t.Errorf("parseRepoURL(%q) = (%q, %q), want (%q, %q)", c.raw, owner, name, c.owner, c.name)
		}
	}
}

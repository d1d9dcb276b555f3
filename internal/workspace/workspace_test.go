package workspace

import "testing"

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"alice's Portfolio":    "alices-portfolio",
		"Zoë’s  Portfolio!":    "zoes-portfolio",
		"  Crème Brûlée  Co. ": "creme-brulee-co",
		"user_42":              "user-42",
		"!!!":                  "workspace",
		"":                     "workspace",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

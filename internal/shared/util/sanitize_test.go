package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "icon.png", want: "icon.png"},
		{name: "flattens separators", in: "a/b\\c.png", want: "a_b_c.png"},
		{name: "trims whitespace", in: "  cover.mp4 ", want: "cover.mp4"},
		{name: "rejects traversal", in: "../etc/passwd", wantErr: true},
		{name: "rejects empty", in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeFileName(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeFileName(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

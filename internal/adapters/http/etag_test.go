package http

import "testing"

func TestMatchesETag(t *testing.T) {
	tag := weakETag([]byte(`{"data":{}}`))

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{tag, true},
		{`"other", ` + tag, true},
		{tag[2:], true}, // strong form of the same tag
		{"*", true},
		{`W/"nope"`, false},
	}
	for _, tt := range tests {
		if got := matchesETag(tt.header, tag); got != tt.want {
			t.Errorf("matchesETag(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestWeakETag_StableAndDistinct(t *testing.T) {
	a := weakETag([]byte("a"))
	if a != weakETag([]byte("a")) {
		t.Error("expected a stable tag")
	}
	if a == weakETag([]byte("b")) {
		t.Error("expected distinct tags for distinct bodies")
	}
}

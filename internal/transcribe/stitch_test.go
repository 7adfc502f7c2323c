package transcribe

import "testing"

func TestStitch(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		want     string
	}{
		{name: "empty previous", previous: "", current: "hello there", want: "hello there"},
		{name: "empty current", previous: "hello there", current: "", want: "hello there"},
		{name: "word overlap", previous: "hello how are you", current: "are you doing well", want: "hello how are you doing well"},
		{name: "single word overlap", previous: "I can help", current: "help with that", want: "I can help with that"},
		{name: "no overlap", previous: "hello world", current: "goodbye moon", want: "hello world goodbye moon"},
		{
			name:     "character overlap",
			previous: "Thanks for calling, the order number is 4 5 6 7 8, let me check",
			current:  "okay the order number is 4 5 6 7 8 confirmed",
			want:     "Thanks for calling, the order number is 4 5 6 7 8, let me check okay confirmed",
		},
		{
			name:     "current already contained",
			previous: "the customer said the package arrived damaged yesterday",
			current:  "package arrived damaged",
			want:     "the customer said the package arrived damaged yesterday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stitch(tt.previous, tt.current); got != tt.want {
				t.Fatalf("Stitch(%q, %q) = %q, want %q", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestStitchNeverTruncatesPrevious(t *testing.T) {
	previous := "first part of the call"
	for _, current := range []string{"call", "part of", "something else", "first part of the call"} {
		got := Stitch(previous, current)
		if len(got) < len(previous) || got[:len(previous)] != previous {
			t.Fatalf("Stitch(%q, %q) = %q does not extend previous", previous, current, got)
		}
	}
}

func TestLongestCommonRun(t *testing.T) {
	if got := longestCommonRun("abcdef", "zcdez"); got != "cde" {
		t.Fatalf("expected cde, got %q", got)
	}
	if got := longestCommonRun("", "abc"); got != "" {
		t.Fatalf("expected empty run, got %q", got)
	}
	if got := longestCommonRun("héllo wörld", "wörld!"); got != "wörld" {
		t.Fatalf("expected rune-safe run, got %q", got)
	}
}

package transcript

import "testing"

func TestCleanSegmentTextNoise(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[[BLANK_AUDIO]]", ""},
		{"[BLANK_AUDIO]", ""},
		{"(blank audio)", ""},
		{"[typing]", ""},
		{"(coughing)", ""},
		{"*typing*", ""},
		{"[music playing]", ""},
		{"hello [keyboard clicking] world", "hello world"},
		{"tick", ""},
		{"click", ""},
		{"beep.", ""},
		{"I", "I"},
		{"a", "a"},
		{"ok", "ok"},
		{"x", ""},
		{"Thanks for watching!", ""},
		{"please subscribe", ""},
		{"See you next time.", ""},
		{"so anyway thanks for watching", "so anyway"},
		{"hello   world ", "hello world"},
	}
	for _, tc := range cases {
		if got := CleanSegmentText(tc.in); got != tc.want {
			t.Errorf("CleanSegmentText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanSegmentTextConcatenationRepair(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"itseems", "it seems"},
		{"itseems fine", "it seems fine"},
		{"thisisbecause", "thisis because"},
		{"iwould say", "i would say"},
		{"it seems", "it seems"},
	}
	for _, tc := range cases {
		if got := CleanSegmentText(tc.in); got != tc.want {
			t.Errorf("CleanSegmentText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanSegmentTextNoFalseRepair(t *testing.T) {
	// None of the listed glue words may fire inside unrelated words.
	for _, in := range []string{"exit", "wouldn't", "reallying is not a word"} {
		if got := CleanSegmentText(in); got != in {
			t.Errorf("CleanSegmentText(%q) = %q, expected unchanged", in, got)
		}
	}
}

package common

import "testing"

// ---------------------------------------------------------------------------
// ParseHumanCount
// ---------------------------------------------------------------------------

func TestParseHumanCount(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"12.5K", 12_500},
		{"12,5k", 12_500},
		{"1.2M", 1_200_000},
		{"3 mil", 3_000},
		{"15 тыс", 15_000},
		{"2 млн", 2_000_000},
		{"1.234", 1_234},
		{"12,500", 12_500},
		{"980", 980},
		{"10K+", 10_000},
		{"", 0},
		{"lots", 0},
		{"-5", 0},
	}
	for _, tc := range cases {
		if got := ParseHumanCount(tc.input); got != tc.want {
			t.Errorf("ParseHumanCount(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// CleanHTMLText
// ---------------------------------------------------------------------------

func TestCleanHTMLTextBasic(t *testing.T) {
	got := CleanHTMLText("<b>Laura</b> <i>Runner</i>")
	if got != "Laura Runner" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Laura Runner")
	}
}

func TestCleanHTMLTextEntities(t *testing.T) {
	got := CleanHTMLText("Run &amp; Fit &lt;b&gt;coach")
	if got != "Run & Fit coach" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Run & Fit coach")
	}
}

func TestCleanHTMLTextCollapsesWhitespace(t *testing.T) {
	got := CleanHTMLText("<br><br>12.5K Followers,<br>   300 Following  ")
	if got != "12.5K Followers, 300 Following" {
		t.Errorf("CleanHTMLText: got %q", got)
	}
}

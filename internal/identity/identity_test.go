package identity

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"The Amazing Spider-Man", "amazing spiderman"},
		{"Tales of Suspense", "tales suspense"},
		{"X-Men #1 (1991)", "xmen 1 1991"},
		{"BATMAN", "batman"},
		{"", ""},
		{"The A An Of", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The Outlaw Kid", "Batman: The Killing Joke!", "2000 AD prog 500",
		"  weird   spacing  ", "Ünïcode Títle",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestClean(t *testing.T) {
	got := Clean(ComicIdentity{
		Title:       "  Batman ",
		IssueNumber: "Not specified on cover",
		Volume:      "",
		Year:        "circa 1940, maybe",
	})
	want := ComicIdentity{Title: "Batman", IssueNumber: Unset, Volume: Unset, Year: "1940"}
	if got != want {
		t.Fatalf("Clean mismatch: got %+v want %+v", got, want)
	}
}

func TestCleanEmptyTitle(t *testing.T) {
	got := Clean(ComicIdentity{})
	if !got.IsUnknown() {
		t.Fatalf("empty title should clean to the unknown sentinel, got %+v", got)
	}
	if got.HasYear() || got.HasIssueNumber() {
		t.Fatalf("empty fields should be unset, got %+v", got)
	}
}

func TestSearchQuery(t *testing.T) {
	id := ComicIdentity{Title: "Batman", IssueNumber: "1", Volume: Unset, Year: "1940"}
	if got := id.SearchQuery(); got != "Batman 1 1940" {
		t.Fatalf("SearchQuery=%q", got)
	}

	id = ComicIdentity{Title: "Batman", IssueNumber: Unset, Volume: Unset, Year: Unset}
	if got := id.SearchQuery(); got != "Batman" {
		t.Fatalf("SearchQuery=%q", got)
	}
}

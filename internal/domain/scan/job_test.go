package scan

import "testing"

func TestStatusTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusUploading:  false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusNotFound:   false,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
	if !StatusNotFound.TerminalFailure() || !StatusFailed.TerminalFailure() {
		t.Fatalf("failed and not_found are terminal failures for clients")
	}
	if StatusCompleted.TerminalFailure() {
		t.Fatalf("completed is not a failure")
	}
}

func TestInlineImageURL(t *testing.T) {
	if got := InlineImageURL("image/png"); got != "inline:image/png" {
		t.Fatalf("got %q", got)
	}
	if got := InlineImageURL(""); got != "inline:image/jpeg" {
		t.Fatalf("empty mime should default to jpeg, got %q", got)
	}
}

func TestResultViewPicksRichest(t *testing.T) {
	job := &Job{
		Result:        &ResultFull{Wines: []Wine{{Name: "a"}}},
		ResultSummary: &ResultSummary{WineCount: 1},
		ResultMinimal: &ResultMinimal{WineCount: 1},
	}
	if v := job.ResultView(); v.Kind != ResultKindFull || v.Full == nil {
		t.Fatalf("want full view, got %+v", v)
	}
	job.Result = nil
	if v := job.ResultView(); v.Kind != ResultKindSummary || v.Summary == nil {
		t.Fatalf("want summary view, got %+v", v)
	}
	job.ResultSummary = nil
	if v := job.ResultView(); v.Kind != ResultKindMinimal || v.Minimal == nil {
		t.Fatalf("want minimal view, got %+v", v)
	}
	job.ResultMinimal = nil
	if v := job.ResultView(); v != nil {
		t.Fatalf("want nil view, got %+v", v)
	}
}

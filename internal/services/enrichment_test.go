package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
)

func TestCollapseSnippets(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", NoSnippetsAvailable},
		{"whitespace", "   \n  ", NoSnippetsAvailable},
		{"not found exact", "not found", NoSnippetsAvailable},
		{"not found prefix", "Not found. I have nothing on this wine.", NoSnippetsAvailable},
		{"short apology", "Sorry, I could not find this wine.", NoSnippetsAvailable},
		{"no information", "no information available", NoSnippetsAvailable},
		{"usable text", "A classic Barolo with firm tannins.", "A classic Barolo with firm tannins."},
	}
	for _, tc := range cases {
		if got := CollapseSnippets(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestCollapseSnippetsKeepsLongTextWithPhrase(t *testing.T) {
	// A long answer that merely mentions "not found" mid-text is still a
	// real answer.
	long := strings.Repeat("Full bodied with dark fruit. ", 10) + "Some vintages are not found outside Italy."
	if got := CollapseSnippets(long); got == NoSnippetsAvailable {
		t.Fatalf("long text collapsed to sentinel")
	}
}

func TestCollapseSnippetsTruncates(t *testing.T) {
	long := strings.Repeat("x", 5000)
	if got := CollapseSnippets(long); len(got) != maxSnippetLen {
		t.Fatalf("len = %d, want %d", len(got), maxSnippetLen)
	}
}

func TestCollapseSnippetsTruncatesOnRuneBoundary(t *testing.T) {
	// Odd byte count of multibyte runes puts the cut mid-rune; the
	// truncation must back off to a boundary and stay valid UTF-8.
	long := "x" + strings.Repeat("é", maxSnippetLen)
	got := CollapseSnippets(long)
	if len(got) > maxSnippetLen {
		t.Fatalf("len = %d, want <= %d", len(got), maxSnippetLen)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8")
	}
}

func TestWineSnippetsProviderFailureIsSentinel(t *testing.T) {
	ai := &fakeAI{textFn: func(_, _ string) (string, error) {
		return "", errors.New("timeout")
	}}
	enr, err := NewEnricher(logger.NewNop(), ai)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := enr.WineSnippets(context.Background(), scan.Wine{Name: "Barolo"}, "")
	if err != nil {
		t.Fatalf("non-auth failure must not error: %v", err)
	}
	if got != NoSnippetsAvailable {
		t.Fatalf("got %q, want sentinel", got)
	}
}

func TestWineSnippetsAuthErrorPropagates(t *testing.T) {
	ai := &fakeAI{textFn: func(_, _ string) (string, error) {
		return "", &openai.HTTPError{StatusCode: http.StatusForbidden, Body: "denied"}
	}}
	enr, _ := NewEnricher(logger.NewNop(), ai)
	_, err := enr.WineSnippets(context.Background(), scan.Wine{Name: "Barolo"}, "")
	if apierr.Code(err) != apierr.CodeProviderAuth {
		t.Fatalf("code = %q, want provider_auth", apierr.Code(err))
	}
}

func TestDescribeWine(t *testing.T) {
	w := scan.Wine{Name: "Barolo", Producer: "Conterno", Vintage: "2016", Grape: "Nebbiolo", Region: "Piedmont"}
	got := describeWine(w)
	want := "Barolo by Conterno vintage 2016 (Nebbiolo) from Piedmont"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := describeWine(scan.Wine{Name: "Barolo"}); got != "Barolo" {
		t.Fatalf("got %q", got)
	}
}

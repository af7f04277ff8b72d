package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
)

// NoSnippetsAvailable is the canonical sentinel for "the provider had
// nothing useful". Empty output, "not found" phrasing and malformed output
// all collapse to it so downstream synthesis sees one stable value.
const NoSnippetsAvailable = "no snippets available"

const maxSnippetLen = 1200

// Enricher fetches short descriptive snippets for a single wine.
type Enricher interface {
	WineSnippets(ctx context.Context, wine scan.Wine, locale string) (string, error)
}

type enricher struct {
	log *logger.Logger
	ai  openai.Client
}

func NewEnricher(log *logger.Logger, ai openai.Client) (Enricher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &enricher{
		log: log.With("service", "Enricher"),
		ai:  ai,
	}, nil
}

const enrichSystemPrompt = "You are a wine reference. Given a wine, reply with two or three short " +
	"factual sentences about it: style, typical tasting notes, notable facts. " +
	"If you do not recognize the wine, reply exactly: not found."

func (e *enricher) WineSnippets(ctx context.Context, wine scan.Wine, locale string) (string, error) {
	user := describeWine(wine)
	if loc := strings.TrimSpace(locale); loc != "" {
		user += " Reply in locale " + loc + "."
	}

	text, err := e.ai.GenerateText(ctx, enrichSystemPrompt, user)
	if err != nil {
		if openai.IsAuthError(err) {
			return "", apierr.New(http.StatusBadGateway, apierr.CodeProviderAuth, err)
		}
		e.log.Warn("Enrichment failed, using sentinel", "wine", wine.Name, "error", err)
		return NoSnippetsAvailable, nil
	}
	return CollapseSnippets(text), nil
}

// CollapseSnippets normalizes raw provider output into either usable
// snippet text or the sentinel.
func CollapseSnippets(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoSnippetsAvailable
	}
	lower := strings.ToLower(text)
	notFoundPhrases := []string{
		"not found",
		"no information",
		"i could not find",
		"i couldn't find",
		"unable to find",
		"i don't have information",
	}
	for _, p := range notFoundPhrases {
		if strings.HasPrefix(lower, p) || (len(text) < 120 && strings.Contains(lower, p)) {
			return NoSnippetsAvailable
		}
	}
	if len(text) > maxSnippetLen {
		cut := maxSnippetLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func describeWine(w scan.Wine) string {
	parts := []string{w.Name}
	if w.Producer != "" {
		parts = append(parts, "by "+w.Producer)
	}
	if w.Vintage != "" {
		parts = append(parts, "vintage "+w.Vintage)
	}
	if w.Grape != "" {
		parts = append(parts, "("+w.Grape+")")
	}
	if w.Region != "" {
		parts = append(parts, "from "+w.Region)
	}
	return strings.Join(parts, " ")
}

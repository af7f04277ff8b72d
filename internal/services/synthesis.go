package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/apierr"
)

// Defaults used when synthesis fails for a single wine. The candidate is
// kept rather than dropped; it already survived extraction.
const (
	fallbackRating    = 85
	fallbackNarrative = "A solid choice. We could not generate a detailed note for this wine."
)

// Synthesizer produces the final per-wine score, narrative and structured
// attributes from the extracted identity plus enrichment snippets.
type Synthesizer interface {
	Synthesize(ctx context.Context, wine scan.Wine, snippets string, locale string) (scan.Wine, error)
}

type synthesizer struct {
	log *logger.Logger
	ai  openai.Client
}

func NewSynthesizer(log *logger.Logger, ai openai.Client) (Synthesizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &synthesizer{
		log: log.With("service", "Synthesizer"),
		ai:  ai,
	}, nil
}

const synthSystemPrompt = "You are a sommelier writing short buying advice. Score the wine 50-100, " +
	"write a two-sentence narrative, and estimate body, tannin, acidity and sweetness " +
	"(light/medium/full or low/medium/high)."

var synthSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rating":    map[string]any{"type": "integer", "minimum": 50, "maximum": 100},
		"narrative": map[string]any{"type": "string"},
		"attributes": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"body":      map[string]any{"type": "string"},
				"tannin":    map[string]any{"type": "string"},
				"acidity":   map[string]any{"type": "string"},
				"sweetness": map[string]any{"type": "string"},
			},
		},
	},
	"required": []string{"rating", "narrative"},
}

func (s *synthesizer) Synthesize(ctx context.Context, wine scan.Wine, snippets string, locale string) (scan.Wine, error) {
	user := "Wine: " + describeWine(wine) + "."
	if snippets != "" && snippets != NoSnippetsAvailable {
		user += " Reference notes: " + snippets
	}
	if loc := strings.TrimSpace(locale); loc != "" {
		user += " Write the narrative in locale " + loc + "."
	}

	out := wine
	out.Snippets = snippets

	obj, err := s.ai.GenerateJSON(ctx, synthSystemPrompt, user, "wine_synthesis", synthSchema)
	if err != nil {
		if openai.IsAuthError(err) {
			return out, apierr.New(http.StatusBadGateway, apierr.CodeProviderAuth, err)
		}
		s.log.Warn("Synthesis failed, using defaults", "wine", wine.Name, "error", err)
		out.Rating = fallbackRating
		out.Narrative = fallbackNarrative
		return out, nil
	}

	out.Rating = clampRating(anyInt(obj["rating"], fallbackRating))
	out.Narrative = anyString(obj["narrative"])
	if out.Narrative == "" {
		out.Narrative = fallbackNarrative
	}
	if attrs, ok := obj["attributes"].(map[string]any); ok {
		out.Attributes = scan.WineAttributes{
			Body:      anyString(attrs["body"]),
			Tannin:    anyString(attrs["tannin"]),
			Acidity:   anyString(attrs["acidity"]),
			Sweetness: anyString(attrs["sweetness"]),
		}
	}
	return out, nil
}

func clampRating(r int) int {
	if r < 50 {
		return 50
	}
	if r > 100 {
		return 100
	}
	return r
}

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

// WineExtractor pulls candidate wines out of the scan photo. Candidates
// without a name are dropped; they cannot be enriched or scored.
type WineExtractor interface {
	ExtractWines(ctx context.Context, image openai.ImageInput, ocrHint string, locale string) ([]scan.Wine, error)
}

type wineExtractor struct {
	log *logger.Logger
	ai  openai.Client
}

func NewWineExtractor(log *logger.Logger, ai openai.Client) (WineExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &wineExtractor{
		log: log.With("service", "WineExtractor"),
		ai:  ai,
	}, nil
}

const extractSystemPrompt = "You are a sommelier's assistant. The user sends a photo of a wine list, " +
	"a shelf of bottles, or a single label. List every distinct wine you can identify."

var extractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"wines": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"producer": map[string]any{"type": "string"},
					"vintage":  map[string]any{"type": "string"},
					"grape":    map[string]any{"type": "string"},
					"region":   map[string]any{"type": "string"},
				},
				"required": []string{"name"},
			},
		},
	},
	"required": []string{"wines"},
}

func (e *wineExtractor) ExtractWines(ctx context.Context, image openai.ImageInput, ocrHint string, locale string) ([]scan.Wine, error) {
	user := "Identify the wines in this photo."
	if hint := strings.TrimSpace(ocrHint); hint != "" {
		user += " OCR detected the following label text, use it to disambiguate: " + hint
	}
	if loc := strings.TrimSpace(locale); loc != "" {
		user += " Answer field values in locale " + loc + " where language matters."
	}

	obj, err := e.ai.GenerateJSONWithImages(ctx, extractSystemPrompt, user, []openai.ImageInput{image}, "wine_extraction", extractSchema)
	if err != nil {
		if openai.IsAuthError(err) {
			return nil, apierr.New(http.StatusBadGateway, apierr.CodeProviderAuth, err)
		}
		return nil, apierr.New(0, apierr.CodeProviderOutput, err)
	}

	rawWines, _ := obj["wines"].([]any)
	wines := make([]scan.Wine, 0, len(rawWines))
	dropped := 0
	for _, rw := range rawWines {
		m, _ := rw.(map[string]any)
		if m == nil {
			dropped++
			continue
		}
		w := scan.Wine{
			Name:     anyString(m["name"]),
			Producer: anyString(m["producer"]),
			Vintage:  anyString(m["vintage"]),
			Grape:    anyString(m["grape"]),
			Region:   anyString(m["region"]),
		}
		if w.Name == "" {
			dropped++
			continue
		}
		wines = append(wines, w)
	}
	if dropped > 0 {
		e.log.Debug("Dropped unidentifiable candidates", "dropped", dropped, "kept", len(wines))
	}
	return wines, nil
}

// anyString coerces model output leniently; vintages in particular come
// back as numbers about as often as strings.
func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return ""
	}
}

func anyInt(v any, def int) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def
		}
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}

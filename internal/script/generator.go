package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/tourcast/tourcast/internal/types"
)

const (
	defaultTemperature = 0.7
	wordsPerMinute     = 150
	minScriptWords     = 40
	minWordBudget      = 150
	maxWordBudget      = 300
)

// categoryFocus steers the narration toward the angle the listener asked for.
var categoryFocus = map[types.Category]string{
	types.CategoryHistory:      "historical significance, key events and dates, and the people who shaped this place",
	types.CategoryCulture:      "local traditions, cultural importance, and how people experience this place today",
	types.CategoryArt:          "artistic movements, notable works and artists, and what to look for",
	types.CategoryArchitecture: "architectural style, structural details, materials, and the architects behind it",
	types.CategoryNature:       "the landscape, ecology, and wildlife, and what makes the setting special",
}

// ContentGenerator is the model surface the generator depends on.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// Generator produces one narration script per point of interest, sized to
// the time slot the stop occupies in the tour.
type Generator interface {
	GenerateScript(ctx context.Context, poi types.PointOfInterest, req types.TourRequest, slotSeconds int) (string, error)
}

type GeneratorImpl struct {
	logger *slog.Logger
	ai     ContentGenerator
}

var _ Generator = (*GeneratorImpl)(nil)

func NewGenerator(ai ContentGenerator, logger *slog.Logger) *GeneratorImpl {
	return &GeneratorImpl{logger: logger, ai: ai}
}

// GenerateScript asks the model for a narration and validates the result.
// A degenerate answer gets exactly one stricter retry before the POI is
// declared permanently failed; transient model errors pass through for the
// pipeline's backoff to handle.
func (g *GeneratorImpl) GenerateScript(ctx context.Context, poi types.PointOfInterest, req types.TourRequest, slotSeconds int) (string, error) {
	ctx, span := otel.Tracer("ScriptGenerator").Start(ctx, "GenerateScript", trace.WithAttributes(
		attribute.String("poi.id", poi.ID),
		attribute.String("poi.name", poi.Name),
		attribute.Int("slot_seconds", slotSeconds),
	))
	defer span.End()

	l := g.logger.With(slog.String("component", "ScriptGenerator"), slog.String("poi_id", poi.ID))

	budget := wordBudget(slotSeconds)
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](defaultTemperature)}

	text, err := g.ai.GenerateContent(ctx, buildPrompt(poi, req, budget, false), config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return "", err
	}

	script := sanitize(text)
	if usable(script) {
		span.SetStatus(codes.Ok, "script generated")
		return script, nil
	}

	l.WarnContext(ctx, "degenerate script, retrying with strict prompt",
		slog.Int("words", countWords(script)))
	text, err = g.ai.GenerateContent(ctx, buildPrompt(poi, req, budget, true), config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "strict retry failed")
		return "", err
	}

	script = sanitize(text)
	if !usable(script) {
		err := &types.PermanentExternalError{
			Provider: "gemini",
			Reason:   fmt.Sprintf("unusable script for %q after strict retry", poi.Name),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unusable script")
		return "", err
	}
	span.SetStatus(codes.Ok, "script generated on retry")
	return script, nil
}

// EstimateSeconds converts a script to its spoken length at narration pace.
func EstimateSeconds(script string) int {
	return countWords(script) * 60 / wordsPerMinute
}

func wordBudget(slotSeconds int) int {
	budget := slotSeconds * wordsPerMinute / 60
	if budget < minWordBudget {
		return minWordBudget
	}
	if budget > maxWordBudget {
		return maxWordBudget
	}
	return budget
}

func buildPrompt(poi types.PointOfInterest, req types.TourRequest, budget int, strict bool) string {
	focus, ok := categoryFocus[poi.Category]
	if !ok {
		focus = "what makes this place worth visiting"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a knowledgeable local guide narrating an audio walking tour.\n")
	fmt.Fprintf(&b, "Write the narration for the stop at %q", poi.Name)
	if poi.Address != "" {
		fmt.Fprintf(&b, " (%s)", poi.Address)
	}
	b.WriteString(".\n")
	if poi.Summary != "" {
		fmt.Fprintf(&b, "Background: %s\n", poi.Summary)
	}
	fmt.Fprintf(&b, "Focus on %s.\n", focus)
	fmt.Fprintf(&b, "Write roughly %d words in %s, in a warm spoken register suitable for listening while walking.\n", budget, languageName(req.Language))
	b.WriteString("Return only the narration text, with no headings, lists or stage directions.\n")
	if strict {
		b.WriteString("Your previous answer was unusable. Return plain narration prose only, nothing else.\n")
	}
	return b.String()
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "en":
		return "English"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	default:
		return code
	}
}

// sanitize strips markdown fences and surrounding whitespace the model
// sometimes adds despite instructions.
func sanitize(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func usable(script string) bool {
	return countWords(script) >= minScriptWords
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

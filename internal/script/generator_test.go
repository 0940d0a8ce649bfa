package script

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/tourcast/tourcast/internal/types"
)

type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	args := m.Called(ctx, prompt, config)
	return args.String(0), args.Error(1)
}

func testPOI() types.PointOfInterest {
	return types.PointOfInterest{
		ID:       "p1",
		Name:     "Eiffel Tower",
		Category: types.CategoryHistory,
		Summary:  "Iron lattice tower on the Champ de Mars",
	}
}

func testRequest() types.TourRequest {
	return types.TourRequest{Language: "en", Categories: []types.Category{types.CategoryHistory}}
}

func newTestGenerator(ai ContentGenerator) *GeneratorImpl {
	return NewGenerator(ai, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func narration(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestGenerator_GenerateScript(t *testing.T) {
	ctx := context.Background()

	t.Run("returns usable narration", func(t *testing.T) {
		ai := new(MockContentGenerator)
		ai.On("GenerateContent", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(narration(200), nil).Once()

		g := newTestGenerator(ai)
		script, err := g.GenerateScript(ctx, testPOI(), testRequest(), 120)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(strings.Fields(script)), minScriptWords)
		ai.AssertExpectations(t)
	})

	t.Run("prompt carries name and category focus", func(t *testing.T) {
		ai := new(MockContentGenerator)
		var captured string
		ai.On("GenerateContent", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Run(func(args mock.Arguments) { captured = args.String(1) }).
			Return(narration(200), nil).Once()

		g := newTestGenerator(ai)
		_, err := g.GenerateScript(ctx, testPOI(), testRequest(), 120)
		require.NoError(t, err)
		assert.Contains(t, captured, "Eiffel Tower")
		assert.Contains(t, captured, "historical significance")
		assert.Contains(t, captured, "English")
	})

	t.Run("degenerate answer retried once with strict prompt", func(t *testing.T) {
		ai := new(MockContentGenerator)
		ai.On("GenerateContent", mock.Anything, mock.MatchedBy(func(p string) bool {
			return !strings.Contains(p, "unusable")
		}), mock.Anything).Return("```\n\n```", nil).Once()
		ai.On("GenerateContent", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "unusable")
		}), mock.Anything).Return(narration(180), nil).Once()

		g := newTestGenerator(ai)
		script, err := g.GenerateScript(ctx, testPOI(), testRequest(), 120)
		require.NoError(t, err)
		assert.NotEmpty(t, script)
		ai.AssertExpectations(t)
	})

	t.Run("degenerate answer twice is permanent", func(t *testing.T) {
		ai := new(MockContentGenerator)
		ai.On("GenerateContent", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return("too short", nil).Twice()

		g := newTestGenerator(ai)
		_, err := g.GenerateScript(ctx, testPOI(), testRequest(), 120)
		require.Error(t, err)
		assert.True(t, types.IsPermanent(err))
		ai.AssertExpectations(t)
	})

	t.Run("model failure is transient", func(t *testing.T) {
		ai := new(MockContentGenerator)
		ai.On("GenerateContent", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return("", &types.TransientExternalError{Provider: "gemini", Err: assert.AnError}).Once()

		g := newTestGenerator(ai)
		_, err := g.GenerateScript(ctx, testPOI(), testRequest(), 120)
		require.Error(t, err)
		assert.True(t, types.IsTransient(err))
	})
}

func TestWordBudget(t *testing.T) {
	assert.Equal(t, minWordBudget, wordBudget(30))  // 75 raw, clamped up
	assert.Equal(t, 250, wordBudget(100))           // within range
	assert.Equal(t, maxWordBudget, wordBudget(600)) // 1500 raw, clamped down
}

func TestEstimateSeconds(t *testing.T) {
	assert.Equal(t, 60, EstimateSeconds(narration(150)))
	assert.Equal(t, 0, EstimateSeconds(""))
}

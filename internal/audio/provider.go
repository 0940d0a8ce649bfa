package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tourcast/tourcast/internal/types"
)

// MinAudioBytes is the smallest plausible synthesis result. Anything
// shorter is a failed attempt dressed up as a 200.
const MinAudioBytes = 1024

// Provider synthesizes narration audio from a script.
type Provider interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// GoogleTTS implements Provider against the Cloud Text-to-Speech JSON API.
type GoogleTTS struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voices     map[string]string
	logger     *slog.Logger
}

var _ Provider = (*GoogleTTS)(nil)

func NewGoogleTTS(baseURL, apiKey string, voices map[string]string, timeout time.Duration, logger *slog.Logger) *GoogleTTS {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &GoogleTTS{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		voices:     voices,
		logger:     logger,
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize renders the text with the voice configured for the language.
// A language without a configured voice is permanent; retrying cannot add
// one.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	voice, ok := g.voices[strings.ToLower(language)]
	if !ok {
		return nil, &types.PermanentExternalError{
			Provider: "tts",
			Reason:   fmt.Sprintf("no voice configured for language %q", language),
		}
	}

	var body synthesizeRequest
	body.Input.Text = text
	body.Voice.LanguageCode = voiceLanguageCode(voice)
	body.Voice.Name = voice
	body.AudioConfig.AudioEncoding = "MP3"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/text:synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &types.TransientExternalError{Provider: "tts", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.WarnContext(ctx, "TTS API error",
			slog.Int("status", resp.StatusCode),
			slog.String("voice", voice),
			slog.String("body", string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &types.TransientExternalError{
				Provider: "tts",
				Err:      fmt.Errorf("status %d", resp.StatusCode),
			}
		}
		return nil, &types.PermanentExternalError{
			Provider: "tts",
			Reason:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(snippet)),
		}
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &types.TransientExternalError{
			Provider: "tts",
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}

	data, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, &types.TransientExternalError{
			Provider: "tts",
			Err:      fmt.Errorf("decode audio content: %w", err),
		}
	}
	if len(data) < MinAudioBytes {
		return nil, &types.TransientExternalError{
			Provider: "tts",
			Err:      fmt.Errorf("audio too small: %d bytes", len(data)),
		}
	}
	return data, nil
}

// voiceLanguageCode derives the BCP-47 code from a voice name such as
// "en-US-Neural2-D".
func voiceLanguageCode(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return voice
}

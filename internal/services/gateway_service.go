package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ieltsprep/internal/config"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GatewayInterface defines the model gateway consumed by the orchestrator
// and the content assembler.
type GatewayInterface interface {
	GenerateText(ctx context.Context, apiKey, prompt string) (*TextResult, error)
	GenerateAudio(ctx context.Context, apiKey, script string, speakers models.SpeakerConfigInput) (*AudioResult, error)
	GenerateImage(ctx context.Context, apiKey, prompt string) (*ImageResult, error)
}

// TextResult carries a successful text generation plus its usage metadata.
// Usage is an explicit return value, never service state, so concurrent
// calls (parallel writing tasks) stay independent.
type TextResult struct {
	Text  string
	Model string
	Usage models.TokenUsage
}

// AudioResult carries synthesized audio.
type AudioResult struct {
	Data       []byte
	MimeType   string
	SampleRate int
	Model      string
}

// ImageResult carries a generated image.
type ImageResult struct {
	Data     []byte
	MimeType string
}

// attemptState is the outcome of one fallback-chain attempt.
type attemptState int

const (
	attemptSuccess attemptState = iota
	// attemptContinue means this model failed but the next one may work.
	attemptContinue
	// attemptAbort means the failure is account-wide (quota) and trying
	// further models is pointless.
	attemptAbort
)

// GatewayService wraps the Gemini REST API: text generation with an ordered
// model fallback chain, TTS with bounded retries, and single-shot image
// generation.
type GatewayService struct {
	httpClient *http.Client
	cfg        *config.Config
	logger     *observability.Logger

	// sleep is swappable in tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// NewGatewayService creates a gateway with an instrumented HTTP client.
func NewGatewayService(cfg *config.Config, logger *observability.Logger) *GatewayService {
	httpClient := &http.Client{
		Timeout: config.TTSRequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &GatewayService{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature        *float64            `json:"temperature,omitempty"`
	MaxOutputTokens    int                 `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig             *geminiVoiceConfig        `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiMultiSpeakerConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiMultiSpeakerConfig struct {
	SpeakerVoiceConfigs []geminiSpeakerVoice `json:"speakerVoiceConfigs"`
}

type geminiSpeakerVoice struct {
	Speaker     string            `json:"speaker"`
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

// geminiResponse is the generateContent response body.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateText walks the configured model chain in order and returns the
// first usable completion. A 429 aborts the chain immediately: the quota is
// account-wide, not per-model, so further attempts only burn time.
func (s *GatewayService) GenerateText(ctx context.Context, apiKey, prompt string) (result0 *TextResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "generate_text",
		attribute.Int("prompt.length", len(prompt)),
		attribute.Int("chain.length", len(s.cfg.Gemini.TextModels)),
	)
	defer observability.FinishSpan(span, &err)

	if apiKey == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "no provider API key configured")
	}
	if prompt == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "prompt cannot be empty")
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     &s.cfg.Gemini.Temperature,
			MaxOutputTokens: s.cfg.Gemini.MaxTokens,
		},
	}

	var lastErr error
	for _, model := range s.cfg.Gemini.TextModels {
		result, state, attemptErr := s.tryTextModel(ctx, apiKey, model, &reqBody)
		switch state {
		case attemptSuccess:
			span.SetAttributes(attribute.String("ai.model", result.Model),
				attribute.Int("usage.total_tokens", result.Usage.TotalTokens))
			return result, nil
		case attemptAbort:
			span.SetAttributes(attribute.String("chain.result", "quota_abort"))
			return nil, attemptErr
		default:
			lastErr = attemptErr
			s.logger.Warn(ctx, "Model attempt failed, falling back", map[string]interface{}{
				"model": model,
				"error": attemptErr.Error(),
			})
		}
	}

	span.SetAttributes(attribute.String("chain.result", "exhausted"))
	if lastErr != nil {
		return nil, contextutils.WrapErrorf(lastErr, "all %d models in the fallback chain failed", len(s.cfg.Gemini.TextModels))
	}
	return nil, contextutils.WrapError(contextutils.ErrModelsExhausted, "no models configured")
}

// tryTextModel issues one generateContent call and classifies the outcome.
func (s *GatewayService) tryTextModel(ctx context.Context, apiKey, model string, reqBody *geminiRequest) (*TextResult, attemptState, error) {
	status, body, err := s.post(ctx, model, apiKey, reqBody, config.ModelRequestTimeout)
	if err != nil {
		return nil, attemptContinue, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "request to %s failed: %w", model, err)
	}

	if state, classified := classifyStatus(status, model, body); classified != nil {
		return nil, state, classified
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, attemptContinue, contextutils.WrapErrorf(contextutils.ErrModelParse, "model %s returned unparseable body: %w", model, err)
	}

	if resp.Error != nil {
		return nil, attemptContinue, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "model %s API error: %s", model, resp.Error.Message)
	}

	text, ok := firstText(&resp)
	if !ok {
		if reason := blockedReason(&resp); reason != "" {
			return nil, attemptContinue, contextutils.WrapErrorf(contextutils.ErrSafetyFiltered, "model %s declined: %s", model, reason)
		}
		return nil, attemptContinue, contextutils.WrapErrorf(contextutils.ErrModelParse, "model %s returned no text candidate", model)
	}

	result := &TextResult{Text: text, Model: model}
	if resp.UsageMetadata != nil {
		result.Usage = models.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
		if result.Usage.TotalTokens == 0 {
			result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
		}
	}
	return result, attemptSuccess, nil
}

// classifyStatus maps a non-200 HTTP status onto the gateway error taxonomy.
// Returns a nil error for status 200.
func classifyStatus(status int, model string, body []byte) (attemptState, error) {
	switch {
	case status == http.StatusOK:
		return attemptSuccess, nil
	case status == http.StatusTooManyRequests:
		return attemptAbort, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "model %s: daily quota or rate limit exhausted", model)
	case status == http.StatusForbidden:
		return attemptContinue, contextutils.WrapErrorf(contextutils.ErrPermissionDenied, "model %s rejected the API key", model)
	case status == http.StatusBadRequest:
		return attemptContinue, contextutils.WrapErrorf(contextutils.ErrMalformedModelRequest, "model %s rejected the request: %s", model, truncate(string(body), 300))
	case status >= 500:
		return attemptContinue, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "model %s returned status %d", model, status)
	default:
		return attemptContinue, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "model %s returned unexpected status %d: %s", model, status, truncate(string(body), 300))
	}
}

// GenerateAudio synthesizes the script with up to TTSMaxAttempts sequential
// attempts, backing off exponentially, retrying only transient (5xx)
// failures. The request shape is structurally different for one vs two
// speakers: a single-speaker voiceConfig or a multiSpeakerVoiceConfig with
// one entry per dialogue role.
func (s *GatewayService) GenerateAudio(ctx context.Context, apiKey, script string, speakers models.SpeakerConfigInput) (result0 *AudioResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "generate_audio",
		attribute.Int("script.length", len(script)),
		attribute.Int("speakers", speakers.Speakers),
	)
	defer observability.FinishSpan(span, &err)

	speech := &geminiSpeechConfig{}
	if speakers.Speakers == 2 {
		speech.MultiSpeakerVoiceConfig = &geminiMultiSpeakerConfig{
			SpeakerVoiceConfigs: []geminiSpeakerVoice{
				{Speaker: "Speaker1", VoiceConfig: voiceConfigFor(speakers.Speaker1, "Kore")},
				{Speaker: "Speaker2", VoiceConfig: voiceConfigFor(speakers.Speaker2, "Puck")},
			},
		}
	} else {
		vc := voiceConfigFor(speakers.Speaker1, "Kore")
		speech.VoiceConfig = &vc
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: script}}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speech,
		},
	}

	model := s.cfg.Gemini.TTSModels[0]
	backoff := config.TTSBackoffBase

	var lastErr error
	for attempt := 1; attempt <= config.TTSMaxAttempts; attempt++ {
		status, body, reqErr := s.post(ctx, model, apiKey, &reqBody, config.TTSRequestTimeout)

		transient := false
		switch {
		case reqErr != nil:
			lastErr = contextutils.WrapErrorf(contextutils.ErrTransientModelError, "tts request failed: %w", reqErr)
			transient = true
		case status == http.StatusTooManyRequests:
			return nil, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "tts model %s: quota exhausted", model)
		case status >= 500:
			lastErr = contextutils.WrapErrorf(contextutils.ErrTransientModelError, "tts model %s returned status %d", model, status)
			transient = true
		case status != http.StatusOK:
			return nil, contextutils.WrapErrorf(contextutils.ErrTTSFailed, "tts model %s returned status %d: %s", model, status, truncate(string(body), 300))
		default:
			audio, parseErr := parseAudioResponse(body, model)
			if parseErr != nil {
				return nil, parseErr
			}
			span.SetAttributes(attribute.Int("audio.bytes", len(audio.Data)),
				attribute.Int("audio.sample_rate", audio.SampleRate),
				attribute.Int("tts.attempt", attempt))
			return audio, nil
		}

		if !transient || attempt == config.TTSMaxAttempts {
			break
		}

		s.logger.Warn(ctx, "TTS attempt failed, backing off", map[string]interface{}{
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   lastErr.Error(),
		})
		s.sleep(backoff)
		backoff *= 2
	}

	return nil, contextutils.WrapErrorf(contextutils.ErrTTSFailed, "audio synthesis failed after %d attempts: %v", config.TTSMaxAttempts, lastErr)
}

func voiceConfigFor(speaker *models.SpeakerVoiceConfig, fallbackVoice string) geminiVoiceConfig {
	voice := fallbackVoice
	if speaker != nil && speaker.VoiceName != "" {
		voice = speaker.VoiceName
	}
	return geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voice}}
}

func parseAudioResponse(body []byte, model string) (*AudioResult, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "tts model %s returned unparseable body: %w", model, err)
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MimeType, "audio/") {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "tts audio payload is not valid base64: %w", err)
			}
			return &AudioResult{
				Data:       data,
				MimeType:   part.InlineData.MimeType,
				SampleRate: sampleRateFromMime(part.InlineData.MimeType),
				Model:      model,
			}, nil
		}
	}

	return nil, contextutils.WrapErrorf(contextutils.ErrTTSFailed, "tts model %s returned no audio part", model)
}

// sampleRateFromMime parses "audio/L16;codec=pcm;rate=24000" style mime
// types, defaulting to 24000 when no rate parameter is present.
func sampleRateFromMime(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)
		if rate, ok := strings.CutPrefix(param, "rate="); ok {
			if n, err := strconv.Atoi(rate); err == nil && n > 0 {
				return n
			}
		}
	}
	return 24000
}

// GenerateImage makes a single generation attempt. There is no retry:
// images are decoration for some question types and degradable for the
// rest, so the caller treats failure as non-fatal.
func (s *GatewayService) GenerateImage(ctx context.Context, apiKey, prompt string) (result0 *ImageResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "generate_image",
		attribute.Int("prompt.length", len(prompt)),
	)
	defer observability.FinishSpan(span, &err)

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	model := s.cfg.Gemini.ImageModel
	status, body, err := s.post(ctx, model, apiKey, &reqBody, config.ImageRequestTimeout)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "image request failed: %w", err)
	}
	if status == http.StatusTooManyRequests {
		return nil, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "image model %s: quota exhausted", model)
	}
	if status != http.StatusOK {
		return nil, contextutils.WrapErrorf(contextutils.ErrTransientModelError, "image model %s returned status %d", model, status)
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "image model %s returned unparseable body: %w", model, err)
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MimeType, "image/") {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "image payload is not valid base64: %w", err)
			}
			span.SetAttributes(attribute.Int("image.bytes", len(data)))
			return &ImageResult{Data: data, MimeType: part.InlineData.MimeType}, nil
		}
	}

	return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "image model %s returned no image part", model)
}

// post issues one generateContent call and returns the raw status and body.
func (s *GatewayService) post(ctx context.Context, model, apiKey string, reqBody *geminiRequest, timeout time.Duration) (int, []byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s:generateContent", strings.TrimSuffix(s.cfg.Gemini.BaseURL, "/"), model)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	s.logger.Debug(ctx, "Gemini HTTP request completed", map[string]interface{}{
		"model":       model,
		"status_code": resp.StatusCode,
		"duration":    duration.String(),
		"api_key":     contextutils.MaskAPIKey(apiKey),
	})

	return resp.StatusCode, body, nil
}

func firstText(resp *geminiResponse) (string, bool) {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, true
			}
		}
	}
	return "", false
}

func blockedReason(resp *geminiResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return resp.PromptFeedback.BlockReason
	}
	for _, cand := range resp.Candidates {
		if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
			return cand.FinishReason
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

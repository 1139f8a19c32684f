package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ieltsprep/internal/config"
	"ieltsprep/internal/middleware"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu          sync.Mutex
	textResp    string
	textErr     error
	failAfter   int // fail calls beyond this count when > 0
	textCalls   int
	audio       *services.AudioResult
	audioErr    error
	audioScript string
}

func (s *stubGateway) GenerateText(_ context.Context, _, _ string) (*services.TextResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textCalls++
	if s.textErr != nil {
		return nil, s.textErr
	}
	if s.failAfter > 0 && s.textCalls > s.failAfter {
		return nil, contextutils.ErrTransientModelError
	}
	return &services.TextResult{
		Text:  s.textResp,
		Model: "model-a",
		Usage: models.TokenUsage{PromptTokens: 100, CompletionTokens: 400, TotalTokens: 500},
	}, nil
}

func (s *stubGateway) GenerateAudio(_ context.Context, _, script string, _ models.SpeakerConfigInput) (*services.AudioResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioScript = script
	if s.audioErr != nil {
		return nil, s.audioErr
	}
	if s.audio != nil {
		return s.audio, nil
	}
	return &services.AudioResult{Data: []byte("pcm"), MimeType: "audio/L16;codec=pcm;rate=24000", SampleRate: 24000, Model: "tts-model"}, nil
}

func (s *stubGateway) GenerateImage(_ context.Context, _, _ string) (*services.ImageResult, error) {
	return &services.ImageResult{Data: []byte{0x89}, MimeType: "image/png"}, nil
}

type stubProviderKeys struct {
	key string
	err error
}

func (s *stubProviderKeys) SetProviderKey(context.Context, int, string) error { return nil }
func (s *stubProviderKeys) DeleteProviderKey(context.Context, int) error      { return nil }
func (s *stubProviderKeys) GetProviderKey(context.Context, int) (string, error) {
	return s.key, s.err
}

type stubUsage struct {
	mu       sync.Mutex
	recorded []models.TokenUsage
	forced   int
}

func (s *stubUsage) RecordUsage(_ context.Context, _ int, usage models.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, usage)
	return nil
}

func (s *stubUsage) ForceToCeiling(context.Context, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced++
	return nil
}

func (s *stubUsage) GetTodayUsage(_ context.Context, userID int) (*models.DailyUsage, error) {
	return &models.DailyUsage{UserID: userID, Ceiling: 1_000_000}, nil
}

type stubRecords struct {
	mu    sync.Mutex
	saved []*models.GeneratedTest
}

func (s *stubRecords) SaveTest(_ context.Context, _ int, test *models.GeneratedTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, test)
	return nil
}

func (s *stubRecords) ListTests(context.Context, int, int, int) ([]models.TestRecord, error) {
	return nil, nil
}

func (s *stubRecords) GetTest(context.Context, int, string) (*models.GeneratedTest, error) {
	return nil, contextutils.ErrRecordNotFound
}

type generationFixture struct {
	router  *gin.Engine
	gateway *stubGateway
	usage   *stubUsage
	records *stubRecords
}

func newGenerationFixture(t *testing.T, gateway *stubGateway) *generationFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger(nil)
	catalog, err := services.NewPromptCatalog()
	require.NoError(t, err)
	assembler := services.NewAssemblerService(catalog, gateway, nil, logger)
	usage := &stubUsage{}
	records := &stubRecords{}

	h := NewGenerationHandler(&config.Config{}, catalog, gateway, assembler,
		&stubProviderKeys{key: "gemini-key"}, usage, records, logger)
	h.seed = func() int64 { return 42 }

	router := gin.New()
	router.POST("/v1/generate", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, 7)
		c.Set(middleware.UsernameKey, "testuser")
	}, h.GenerateTest)
	return &generationFixture{router: router, gateway: gateway, usage: usage, records: records}
}

func (f *generationFixture) post(body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func readingModelResponse(t *testing.T) string {
	t.Helper()
	questions := make([]map[string]interface{}, 0, 5)
	answers := []string{"TRUE", "FALSE", "NOT GIVEN", "TRUE", "FALSE"}
	for i, a := range answers {
		questions = append(questions, map[string]interface{}{
			"question_number": i + 1,
			"question_text":   "Statement about the passage.",
			"correct_answer":  a,
			"explanation":     "stated in paragraph B",
		})
	}
	raw, err := json.Marshal(map[string]interface{}{
		"passage": map[string]string{"title": "Urban Forests", "content": "Paragraph A...\n\nParagraph B..."},
		"topic":   "urban forestry",
		"question_group": map[string]interface{}{
			"instruction": "Do the following statements agree with the information in the passage?",
			"questions":   questions,
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func listeningModelResponse(t *testing.T) string {
	t.Helper()
	questions := make([]map[string]interface{}, 0, 3)
	for i, a := range []string{"Jones", "07700 900123", "Tuesday"} {
		questions = append(questions, map[string]interface{}{
			"question_number": i + 1,
			"question_text":   "Field " + a,
			"correct_answer":  a,
			"explanation":     "stated by the caller",
		})
	}
	raw, err := json.Marshal(map[string]interface{}{
		"transcript":    "Speaker1: Good morning, City Gym.\nSpeaker2: Hello, I'd like to join.",
		"speaker_names": map[string]string{"Speaker1": "Receptionist", "Speaker2": "Caller"},
		"topic":         "gym membership",
		"question_group": map[string]interface{}{
			"instruction": "Complete the form below.",
			"questions":   questions,
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func writingModelResponse(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"topic": "household recycling rates",
		"task": map[string]interface{}{
			"instruction":        "The chart below shows recycling rates in five countries. Summarise the information.",
			"visual_description": "A bar chart comparing recycling rates across five countries from 2000 to 2020.",
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func speakingModelResponse(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"topic": "hobbies",
		"parts": []map[string]interface{}{
			{
				"part":        3,
				"instruction": "Discussion questions.",
				"questions":   []string{"Why do people take up hobbies?", "Do hobbies change with age?"},
			},
			{
				"part":        1,
				"instruction": "Answer questions about yourself.",
				"questions":   []string{"Do you have a hobby?", "When did you start it?"},
			},
			{
				"part":        2,
				"instruction": "Describe the topic on the card.",
				"cue_card": map[string]interface{}{
					"topic":   "Describe a hobby you enjoy",
					"bullets": []string{"what it is", "when you started", "why you enjoy it"},
				},
				"prep_seconds": 60,
				"talk_seconds": 120,
			},
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestGenerateTest_Reading(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: readingModelResponse(t)})

	w := f.post(`{"module": "reading", "questionType": "TRUE_FALSE_NOT_GIVEN", "difficulty": "medium", "questionCount": 5}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var test models.GeneratedTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	assert.NotEmpty(t, test.ID)
	assert.Equal(t, models.ModuleReading, test.Module)
	require.NotNil(t, test.Passage)
	require.Len(t, test.QuestionGroups, 1)
	assert.Len(t, test.QuestionGroups[0].Questions, 5)

	require.Len(t, f.usage.recorded, 1)
	assert.Equal(t, 500, f.usage.recorded[0].TotalTokens)
	require.Len(t, f.records.saved, 1)
	assert.Equal(t, test.ID, f.records.saved[0].ID)
}

func TestGenerateTest_Listening(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: listeningModelResponse(t)})

	w := f.post(`{
		"module": "listening",
		"questionType": "FORM_COMPLETION",
		"difficulty": "medium",
		"questionCount": 3,
		"listeningConfig": {"speakers": 2}
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var test models.GeneratedTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	assert.NotEmpty(t, test.AudioBase64)
	assert.Equal(t, 24000, test.SampleRate)
	// The readable transcript uses display names; the TTS call keeps the
	// raw role tokens.
	assert.Contains(t, test.Transcript, "Receptionist:")
	assert.Contains(t, f.gateway.audioScript, "Speaker1:")
}

func TestGenerateTest_ListeningAudioFailureIsFatal(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{
		textResp: listeningModelResponse(t),
		audioErr: contextutils.ErrTTSFailed,
	})

	w := f.post(`{"module": "listening", "questionType": "FORM_COMPLETION", "difficulty": "medium", "questionCount": 3}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "TTS_FAILED")
	// Tokens from the text call are still accounted.
	assert.Len(t, f.usage.recorded, 1)
}

func TestGenerateTest_QuotaExhaustedPinsUsage(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textErr: contextutils.ErrQuotaExceeded})

	w := f.post(`{"module": "reading", "questionType": "TRUE_FALSE_NOT_GIVEN", "difficulty": "medium"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "QUOTA_EXCEEDED")
	assert.Contains(t, w.Body.String(), "daily reset")
	assert.Equal(t, 1, f.usage.forced)
}

func TestGenerateTest_MissingProviderKey(t *testing.T) {
	gateway := &stubGateway{textResp: readingModelResponse(t)}
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger(nil)
	catalog, err := services.NewPromptCatalog()
	require.NoError(t, err)
	h := NewGenerationHandler(&config.Config{}, catalog, gateway,
		services.NewAssemblerService(catalog, gateway, nil, logger),
		&stubProviderKeys{err: contextutils.ErrRecordNotFound}, &stubUsage{}, &stubRecords{}, logger)

	router := gin.New()
	router.POST("/v1/generate", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, 7)
	}, h.GenerateTest)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate",
		strings.NewReader(`{"module": "reading", "questionType": "TRUE_FALSE_NOT_GIVEN", "difficulty": "medium"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Save your Gemini API key")
	assert.Zero(t, gateway.textCalls)
}

func TestGenerateTest_WritingFullRunsBothTasks(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: writingModelResponse(t)})

	w := f.post(`{"module": "writing", "difficulty": "hard", "writingConfig": {"task": "FULL", "visualType": "BAR_CHART"}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var test models.GeneratedTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	require.NotNil(t, test.WritingTask)
	require.NotNil(t, test.WritingTask.Task1)
	require.NotNil(t, test.WritingTask.Task2)
	assert.Equal(t, 150, test.WritingTask.Task1.MinWords)
	assert.Equal(t, 250, test.WritingTask.Task2.MinWords)
	assert.Equal(t, 60, test.TimeMinutes)
	assert.NotEmpty(t, test.WritingTask.Task1.ImageFallback)

	assert.Equal(t, 2, f.gateway.textCalls)
	assert.Len(t, f.usage.recorded, 2)
}

func TestGenerateTest_WritingFullFailsWhenEitherTaskFails(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: writingModelResponse(t), failAfter: 1})

	w := f.post(`{"module": "writing", "difficulty": "hard", "writingConfig": {"task": "FULL", "visualType": "PIE_CHART"}}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, f.records.saved)
}

func TestGenerateTest_WritingTask2Only(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: writingModelResponse(t)})

	w := f.post(`{"module": "writing", "difficulty": "medium", "writingConfig": {"task": "TASK2"}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var test models.GeneratedTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	require.NotNil(t, test.WritingTask.Task2)
	assert.Nil(t, test.WritingTask.Task1)
	assert.Equal(t, 40, test.TimeMinutes)
	assert.Equal(t, 1, f.gateway.textCalls)
}

func TestGenerateTest_SpeakingFullTest(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{textResp: speakingModelResponse(t)})

	w := f.post(`{"module": "speaking", "questionType": "FULL_TEST", "difficulty": "medium"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var test models.GeneratedTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	require.Len(t, test.SpeakingParts, 3)
	// Parts come back ordered regardless of model output order.
	for i, part := range test.SpeakingParts {
		assert.Equal(t, i+1, part.Part)
	}
	require.NotNil(t, test.SpeakingParts[1].CueCard)
	assert.Equal(t, 60, test.SpeakingParts[1].PrepSeconds)
	assert.Equal(t, 2, test.SpeakingParts[1].SpeakMinutes)
}

func TestGenerateTest_InvalidModule(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{})

	w := f.post(`{"module": "grammar", "difficulty": "medium"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.gateway.textCalls)
}

func TestGenerateTest_UnknownQuestionType(t *testing.T) {
	f := newGenerationFixture(t, &stubGateway{})

	w := f.post(`{"module": "reading", "questionType": "CLOZE", "difficulty": "medium"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.gateway.textCalls)
}

package handlers

import (
	"context"
	"encoding/base64"
	"math/rand"
	"net/http"
	"time"

	"ieltsprep/internal/config"
	"ieltsprep/internal/middleware"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// GenerationHandler runs the generation pipeline: prompt build, model call,
// JSON extraction, assembly, media synthesis, quota accounting, persistence.
type GenerationHandler struct {
	cfg          *config.Config
	catalog      *services.PromptCatalog
	gateway      services.GatewayInterface
	assembler    services.AssemblerInterface
	providerKeys services.ProviderKeyServiceInterface
	usage        services.UsageServiceInterface
	records      services.TestRecordServiceInterface
	logger       *observability.Logger

	// seed feeds the prompt catalog's deterministic variety; injectable so
	// tests can pin it.
	seed func() int64
}

// NewGenerationHandler creates the generation endpoint handler. records may
// be nil to disable test persistence.
func NewGenerationHandler(
	cfg *config.Config,
	catalog *services.PromptCatalog,
	gateway services.GatewayInterface,
	assembler services.AssemblerInterface,
	providerKeys services.ProviderKeyServiceInterface,
	usage services.UsageServiceInterface,
	records services.TestRecordServiceInterface,
	logger *observability.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		cfg:          cfg,
		catalog:      catalog,
		gateway:      gateway,
		assembler:    assembler,
		providerKeys: providerKeys,
		usage:        usage,
		records:      records,
		logger:       logger,
		seed:         func() int64 { return time.Now().UnixNano() },
	}
}

// Default request parameters applied when the client omits them.
const (
	defaultQuestionCount        = 5
	defaultReadingTimeMinutes   = 20
	defaultListeningTimeMinutes = 6
)

// GenerateTest handles POST /v1/generate.
func (h *GenerationHandler) GenerateTest(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_test")
	defer span.End()

	var req models.GenerateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}
	if !req.Module.IsValid() || !req.Difficulty.IsValid() {
		respondError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "unknown module or difficulty"))
		return
	}
	applyRequestDefaults(&req)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.String("test.module", string(req.Module)),
		attribute.String("test.question_type", req.QuestionType),
	)

	apiKey, err := h.providerKeys.GetProviderKey(ctx, userID)
	if err != nil {
		if contextutils.GetErrorCode(err) == contextutils.ErrorCodeRecordNotFound {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:      "No Gemini API key on file",
				ErrorType:  string(contextutils.ErrorCodeInvalidInput),
				Suggestion: "Save your Gemini API key in settings before generating tests.",
			})
			return
		}
		respondError(c, err)
		return
	}

	var test *models.GeneratedTest
	switch req.Module {
	case models.ModuleReading:
		test, err = h.generateReading(ctx, userID, apiKey, &req)
	case models.ModuleListening:
		test, err = h.generateListening(ctx, userID, apiKey, &req)
	case models.ModuleWriting:
		test, err = h.generateWriting(ctx, userID, apiKey, &req)
	case models.ModuleSpeaking:
		test, err = h.generateSpeaking(ctx, userID, apiKey, &req)
	}
	if err != nil {
		h.handlePipelineFailure(ctx, userID, err)
		respondError(c, err)
		return
	}

	test.ID = uuid.NewString()
	test.GeneratedAt = time.Now().UTC()

	if h.records != nil {
		if saveErr := h.records.SaveTest(ctx, userID, test); saveErr != nil {
			// The test is already built; losing the archive copy is not
			// worth failing the request over.
			h.logger.Warn(ctx, "Failed to persist generated test", map[string]interface{}{
				"test_id": test.ID,
				"error":   saveErr.Error(),
			})
		}
	}

	c.JSON(http.StatusOK, test)
}

func applyRequestDefaults(req *models.GenerateTestRequest) {
	if req.QuestionCount == 0 {
		req.QuestionCount = defaultQuestionCount
	}
	if req.TimeMinutes == 0 {
		switch req.Module {
		case models.ModuleReading:
			req.TimeMinutes = defaultReadingTimeMinutes
		case models.ModuleListening:
			req.TimeMinutes = defaultListeningTimeMinutes
		}
	}
}

// handlePipelineFailure runs the side effects a failed generation still
// needs. A provider 429 is account-wide, so today's counter is pinned to the
// ceiling before the client hears about it.
func (h *GenerationHandler) handlePipelineFailure(ctx context.Context, userID int, err error) {
	if contextutils.GetErrorCode(err) != contextutils.ErrorCodeQuotaExceeded {
		return
	}
	if pinErr := h.usage.ForceToCeiling(ctx, userID); pinErr != nil {
		h.logger.Warn(ctx, "Failed to pin usage after provider 429", map[string]interface{}{
			"user_id": userID,
			"error":   pinErr.Error(),
		})
	}
}

// generate runs one text-model call and extracts the JSON document from its
// output. Usage is recorded as soon as the model reports it, whether or not
// the rest of the pipeline succeeds; the tokens are spent either way.
func (h *GenerationHandler) generate(ctx context.Context, userID int, apiKey, prompt string) ([]byte, error) {
	result, err := h.gateway.GenerateText(ctx, apiKey, prompt)
	if err != nil {
		return nil, err
	}
	h.recordUsage(ctx, userID, result.Usage)

	extracted, err := services.ExtractJSON(result.Text)
	if err != nil {
		return nil, err
	}
	return []byte(extracted), nil
}

func (h *GenerationHandler) recordUsage(ctx context.Context, userID int, usage models.TokenUsage) {
	if err := h.usage.RecordUsage(ctx, userID, usage); err != nil {
		h.logger.Warn(ctx, "Failed to record token usage", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func (h *GenerationHandler) promptInput(req *models.GenerateTestRequest, seed int64) services.PromptInput {
	return services.PromptInput{
		Module:        req.Module,
		QuestionType:  req.QuestionType,
		Difficulty:    req.Difficulty,
		Topic:         req.TopicPreference,
		QuestionCount: req.QuestionCount,
		TimeMinutes:   req.TimeMinutes,
		StartQuestion: 1,
		Seed:          seed,
		Reading:       req.ReadingConfig,
		Listening:     req.ListeningConfig,
		Writing:       req.WritingConfig,
	}
}

func assembleInput(req *models.GenerateTestRequest, seed int64) services.AssembleInput {
	return services.AssembleInput{
		Module:        req.Module,
		QuestionType:  req.QuestionType,
		Difficulty:    req.Difficulty,
		Topic:         req.TopicPreference,
		QuestionCount: req.QuestionCount,
		StartQuestion: 1,
		TimeMinutes:   req.TimeMinutes,
		Seed:          seed,
	}
}

func (h *GenerationHandler) generateReading(ctx context.Context, userID int, apiKey string, req *models.GenerateTestRequest) (*models.GeneratedTest, error) {
	seed := h.seed()
	prompt, err := h.catalog.BuildPrompt(h.promptInput(req, seed))
	if err != nil {
		return nil, err
	}
	raw, err := h.generate(ctx, userID, apiKey, prompt)
	if err != nil {
		return nil, err
	}
	return h.assembler.AssembleReading(ctx, apiKey, raw, assembleInput(req, seed))
}

func (h *GenerationHandler) generateListening(ctx context.Context, userID int, apiKey string, req *models.GenerateTestRequest) (*models.GeneratedTest, error) {
	seed := h.seed()
	prompt, err := h.catalog.BuildPrompt(h.promptInput(req, seed))
	if err != nil {
		return nil, err
	}
	raw, err := h.generate(ctx, userID, apiKey, prompt)
	if err != nil {
		return nil, err
	}
	test, ttsScript, err := h.assembler.AssembleListening(ctx, apiKey, raw, assembleInput(req, seed))
	if err != nil {
		return nil, err
	}

	// A listening test without audio is unusable, so synthesis failure
	// fails the whole request.
	audio, err := h.gateway.GenerateAudio(ctx, apiKey, ttsScript, req.SpeakerConfig())
	if err != nil {
		return nil, err
	}
	test.AudioBase64 = base64.StdEncoding.EncodeToString(audio.Data)
	test.SampleRate = audio.SampleRate
	return test, nil
}

type writingTaskResult struct {
	task  *models.WritingTaskPrompt
	topic string
	err   error
}

func (h *GenerationHandler) generateWriting(ctx context.Context, userID int, apiKey string, req *models.GenerateTestRequest) (*models.GeneratedTest, error) {
	seed := h.seed()
	taskMode := models.WritingTask2
	visual := ""
	if req.WritingConfig != nil {
		if req.WritingConfig.Task != "" {
			taskMode = req.WritingConfig.Task
		}
		visual = req.WritingConfig.VisualType
	}
	if req.QuestionType != "" {
		taskMode = req.QuestionType
	}

	// RANDOM resolves here so prompt building stays deterministic.
	if visual == "" || visual == models.VisualRandom {
		concrete := models.ConcreteVisualTypes()
		visual = concrete[rand.New(rand.NewSource(seed)).Intn(len(concrete))]
	}

	test := &models.GeneratedTest{
		Module:       models.ModuleWriting,
		QuestionType: taskMode,
		Difficulty:   req.Difficulty,
		Topic:        req.TopicPreference,
		WritingTask:  &models.WritingTask{},
	}

	switch taskMode {
	case models.WritingTask1:
		res := h.runWritingTask(ctx, userID, apiKey, req, models.WritingTask1, visual, seed)
		if res.err != nil {
			return nil, res.err
		}
		test.WritingTask.Task1 = res.task
		test.Topic = pickWritingTopic(res.topic, req.TopicPreference)
		test.TimeMinutes = res.task.TimeMinutes
	case models.WritingTask2:
		res := h.runWritingTask(ctx, userID, apiKey, req, models.WritingTask2, "", seed)
		if res.err != nil {
			return nil, res.err
		}
		test.WritingTask.Task2 = res.task
		test.Topic = pickWritingTopic(res.topic, req.TopicPreference)
		test.TimeMinutes = res.task.TimeMinutes
	case models.WritingFullTest:
		// Both tasks run concurrently; either failure fails the request.
		ch1 := make(chan writingTaskResult, 1)
		ch2 := make(chan writingTaskResult, 1)
		go func() { ch1 <- h.runWritingTask(ctx, userID, apiKey, req, models.WritingTask1, visual, seed) }()
		go func() { ch2 <- h.runWritingTask(ctx, userID, apiKey, req, models.WritingTask2, "", seed+1) }()
		res1, res2 := <-ch1, <-ch2
		if err := preferQuotaError(res1.err, res2.err); err != nil {
			return nil, err
		}
		test.WritingTask.Task1 = res1.task
		test.WritingTask.Task2 = res2.task
		test.Topic = pickWritingTopic(res1.topic, req.TopicPreference)
		test.TimeMinutes = res1.task.TimeMinutes + res2.task.TimeMinutes
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown writing task %q", taskMode)
	}
	return test, nil
}

func (h *GenerationHandler) runWritingTask(ctx context.Context, userID int, apiKey string, req *models.GenerateTestRequest, task, visual string, seed int64) writingTaskResult {
	in := h.promptInput(req, seed)
	if task == models.WritingTask1 {
		in.Writing = &models.WritingConfig{Task: task, VisualType: visual}
	}
	prompt, err := h.catalog.BuildWritingPrompt(in, task)
	if err != nil {
		return writingTaskResult{err: err}
	}
	raw, err := h.generate(ctx, userID, apiKey, prompt)
	if err != nil {
		return writingTaskResult{err: err}
	}

	taskNumber := 2
	if task == models.WritingTask1 {
		taskNumber = 1
	}
	built, topic, err := h.assembler.AssembleWritingTask(ctx, apiKey, raw, taskNumber, visual)
	if err != nil {
		return writingTaskResult{err: err}
	}
	return writingTaskResult{task: built, topic: topic}
}

// preferQuotaError returns the error that should surface when parallel
// tasks fail: a quota error wins because it changes what the client does
// next, otherwise the first non-nil error.
func preferQuotaError(errs ...error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if contextutils.GetErrorCode(err) == contextutils.ErrorCodeQuotaExceeded {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

func pickWritingTopic(modelTopic, requested string) string {
	if modelTopic != "" {
		return modelTopic
	}
	return requested
}

func (h *GenerationHandler) generateSpeaking(ctx context.Context, userID int, apiKey string, req *models.GenerateTestRequest) (*models.GeneratedTest, error) {
	if req.QuestionType == "" {
		req.QuestionType = models.SpeakingFullTest
	}
	parts := speakingPartsFor(req.QuestionType)

	in := h.promptInput(req, h.seed())
	in.SpeakingParts = parts
	prompt, err := h.catalog.BuildSpeakingPrompt(in)
	if err != nil {
		return nil, err
	}
	raw, err := h.generate(ctx, userID, apiKey, prompt)
	if err != nil {
		return nil, err
	}

	built, topic, err := h.assembler.AssembleSpeaking(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &models.GeneratedTest{
		Module:        models.ModuleSpeaking,
		QuestionType:  req.QuestionType,
		Difficulty:    req.Difficulty,
		Topic:         pickWritingTopic(topic, req.TopicPreference),
		SpeakingParts: built,
	}, nil
}

func speakingPartsFor(questionType string) []int {
	switch questionType {
	case "PART1":
		return []int{1}
	case "PART2":
		return []int{2}
	case "PART3":
		return []int{3}
	default:
		return []int{1, 2, 3}
	}
}

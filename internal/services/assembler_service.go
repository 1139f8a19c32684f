package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// StorageInterface uploads generated assets and returns their public URL.
type StorageInterface interface {
	UploadImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// AssemblerInterface normalizes parsed model output into the canonical test
// shapes.
type AssemblerInterface interface {
	AssembleReading(ctx context.Context, apiKey string, raw []byte, in AssembleInput) (*models.GeneratedTest, error)
	AssembleListening(ctx context.Context, apiKey string, raw []byte, in AssembleInput) (*models.GeneratedTest, string, error)
	AssembleWritingTask(ctx context.Context, apiKey string, raw []byte, taskNumber int, visualType string) (*models.WritingTaskPrompt, string, error)
	AssembleSpeaking(ctx context.Context, raw []byte) ([]models.SpeakingPart, string, error)
}

// AssembleInput carries the request parameters the assembler validates the
// model output against.
type AssembleInput struct {
	Module        models.Module
	QuestionType  string
	Difficulty    models.Difficulty
	Topic         string
	QuestionCount int
	StartQuestion int
	TimeMinutes   int
	Seed          int64
}

// AssemblerService turns extracted model JSON into canonical QuestionGroups:
// relabeling shuffled option pools, fanning out multi-answer questions,
// validating placeholder numbering, and enriching image-bearing types with
// a generated figure.
type AssemblerService struct {
	catalog *PromptCatalog
	gateway GatewayInterface
	storage StorageInterface
	logger  *observability.Logger
}

// NewAssemblerService creates an assembler. storage may be nil, in which
// case image-bearing types keep their textual description only.
func NewAssemblerService(catalog *PromptCatalog, gateway GatewayInterface, storage StorageInterface, logger *observability.Logger) *AssemblerService {
	return &AssemblerService{
		catalog: catalog,
		gateway: gateway,
		storage: storage,
		logger:  logger,
	}
}

// modelTestResponse is the shape every reading/listening prompt instructs
// the model to return. The prompt catalog and this struct must stay in
// lockstep.
type modelTestResponse struct {
	Passage      *models.Passage   `json:"passage"`
	Transcript   string            `json:"transcript"`
	SpeakerNames map[string]string `json:"speaker_names"`
	Topic        string            `json:"topic"`
	Group        *rawGroup         `json:"question_group"`
}

type rawGroup struct {
	Instruction string                 `json:"instruction"`
	Options     map[string]interface{} `json:"options"`
	Questions   []rawQuestion          `json:"questions"`
}

type rawQuestion struct {
	QuestionNumber int      `json:"question_number"`
	QuestionText   string   `json:"question_text"`
	CorrectAnswer  string   `json:"correct_answer"`
	Explanation    string   `json:"explanation"`
	Options        []string `json:"options"`
	MaxAnswers     int      `json:"max_answers"`
}

// AssembleReading builds a reading test from extracted model JSON.
func (s *AssemblerService) AssembleReading(ctx context.Context, apiKey string, raw []byte, in AssembleInput) (result0 *models.GeneratedTest, err error) {
	ctx, span := observability.TraceAssemblerFunction(ctx, "assemble_reading",
		attribute.String("question.type", in.QuestionType))
	defer observability.FinishSpan(span, &err)

	resp, err := parseTestResponse(raw)
	if err != nil {
		return nil, err
	}
	if resp.Passage == nil || resp.Passage.Content == "" {
		return nil, contextutils.WrapError(contextutils.ErrModelParse, "model response has no passage")
	}

	group, err := s.assembleGroup(ctx, apiKey, resp, in)
	if err != nil {
		return nil, err
	}

	return &models.GeneratedTest{
		Module:         models.ModuleReading,
		QuestionType:   in.QuestionType,
		Difficulty:     in.Difficulty,
		Topic:          pickTopic(resp.Topic, in.Topic),
		TimeMinutes:    in.TimeMinutes,
		Passage:        resp.Passage,
		QuestionGroups: []models.QuestionGroup{*group},
	}, nil
}

// AssembleListening builds a listening test from extracted model JSON. The
// returned string is the raw Speaker1/Speaker2 script for the TTS call; the
// test's Transcript field carries the human-readable version with display
// names substituted.
func (s *AssemblerService) AssembleListening(ctx context.Context, apiKey string, raw []byte, in AssembleInput) (result0 *models.GeneratedTest, result1 string, err error) {
	ctx, span := observability.TraceAssemblerFunction(ctx, "assemble_listening",
		attribute.String("question.type", in.QuestionType))
	defer observability.FinishSpan(span, &err)

	resp, err := parseTestResponse(raw)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(resp.Transcript) == "" {
		return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "model response has no transcript")
	}
	if !strings.Contains(resp.Transcript, "Speaker1:") {
		return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "transcript is missing Speaker1 role tokens")
	}

	group, err := s.assembleGroup(ctx, apiKey, resp, in)
	if err != nil {
		return nil, "", err
	}

	test := &models.GeneratedTest{
		Module:         models.ModuleListening,
		QuestionType:   in.QuestionType,
		Difficulty:     in.Difficulty,
		Topic:          pickTopic(resp.Topic, in.Topic),
		TimeMinutes:    in.TimeMinutes,
		Transcript:     HumanizeTranscript(resp.Transcript, resp.SpeakerNames),
		QuestionGroups: []models.QuestionGroup{*group},
	}
	return test, resp.Transcript, nil
}

// assembleGroup dispatches to the per-family normalization and runs the
// shared numbering and option-reference validation.
func (s *AssemblerService) assembleGroup(ctx context.Context, apiKey string, resp *modelTestResponse, in AssembleInput) (*models.QuestionGroup, error) {
	if resp.Group == nil {
		return nil, contextutils.WrapError(contextutils.ErrModelParse, "model response has no question_group")
	}
	if strings.TrimSpace(resp.Group.Instruction) == "" {
		return nil, contextutils.WrapError(contextutils.ErrModelParse, "question group has no instruction")
	}
	if len(resp.Group.Questions) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrModelParse, "question group has no questions")
	}
	if in.StartQuestion < 1 {
		in.StartQuestion = 1
	}

	rng := rand.New(rand.NewSource(in.Seed))

	group := &models.QuestionGroup{
		Instruction:   resp.Group.Instruction,
		QuestionType:  in.QuestionType,
		StartQuestion: in.StartQuestion,
		EndQuestion:   in.StartQuestion + in.QuestionCount - 1,
		Options:       resp.Group.Options,
	}

	var err error
	switch in.QuestionType {
	case models.MultipleChoiceMultiple:
		err = s.fanOutMultiAnswer(group, resp.Group, in, rng)
	case models.MultipleChoiceSingle:
		err = s.assembleSingleChoice(group, resp.Group, in, rng)
	case models.MatchingHeadings:
		err = s.assembleLetteredPool(group, resp.Group, in, rng, "headings", romanLabel, romanIndex)
	case models.MatchingFeatures:
		err = s.assembleLetteredPool(group, resp.Group, in, rng, "features", letterLabel, letterIndex)
	case models.MatchingSentenceEndings:
		err = s.assembleLetteredPool(group, resp.Group, in, rng, "endings", letterLabel, letterIndex)
	case models.Matching:
		err = s.assembleLetteredPool(group, resp.Group, in, rng, "matching_options", letterLabel, letterIndex)
	case models.DiagramLabeling:
		err = s.assembleLetteredPool(group, resp.Group, in, rng, "labels", letterLabel, letterIndex)
	case models.MatchingInformation:
		err = s.assembleParagraphMatching(group, resp.Group, in)
	case models.MapLabeling:
		err = s.assembleMapLabeling(group, resp.Group, in)
	case models.FlowchartCompletion:
		err = s.assembleWordBank(group, resp.Group, in, rng)
	case models.SummaryCompletion:
		err = s.assembleSummary(group, resp.Group, in, rng)
	case models.TrueFalseNotGiven:
		err = s.assembleClosedAnswers(group, resp.Group, in, []string{"TRUE", "FALSE", "NOT GIVEN"})
	case models.YesNoNotGiven:
		err = s.assembleClosedAnswers(group, resp.Group, in, []string{"YES", "NO", "NOT GIVEN"})
	default:
		// Completion and short-answer families: answers are free text.
		err = s.assembleCompletion(group, resp.Group, in)
	}
	if err != nil {
		return nil, err
	}

	if models.ImageBearingType(in.QuestionType) {
		s.enrichWithImage(ctx, apiKey, group, in)
	}

	return group, nil
}

// copyQuestions renumbers the model's questions into the group's range and
// checks required fields. Most families call this first.
func copyQuestions(group *models.QuestionGroup, rg *rawGroup, in AssembleInput) error {
	if len(rg.Questions) != in.QuestionCount {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"model returned %d questions, expected %d", len(rg.Questions), in.QuestionCount)
	}
	group.Questions = make([]models.Question, len(rg.Questions))
	for i, rq := range rg.Questions {
		if strings.TrimSpace(rq.QuestionText) == "" {
			return contextutils.WrapErrorf(contextutils.ErrModelParse, "question %d has no text", in.StartQuestion+i)
		}
		if strings.TrimSpace(rq.CorrectAnswer) == "" {
			return contextutils.WrapErrorf(contextutils.ErrModelParse, "question %d has no correct answer", in.StartQuestion+i)
		}
		group.Questions[i] = models.Question{
			QuestionNumber: in.StartQuestion + i,
			QuestionText:   rq.QuestionText,
			CorrectAnswer:  strings.TrimSpace(rq.CorrectAnswer),
			Explanation:    rq.Explanation,
		}
	}
	return nil
}

func (s *AssemblerService) assembleCompletion(group *models.QuestionGroup, rg *rawGroup, in AssembleInput) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	return validatePlaceholders(group, in)
}

func (s *AssemblerService) assembleClosedAnswers(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, allowed []string) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	for i := range group.Questions {
		answer := strings.ToUpper(group.Questions[i].CorrectAnswer)
		found := false
		for _, a := range allowed {
			if answer == a {
				found = true
				break
			}
		}
		if !found {
			return contextutils.WrapErrorf(contextutils.ErrModelParse,
				"question %d answer %q is not one of %s", group.Questions[i].QuestionNumber,
				group.Questions[i].CorrectAnswer, strings.Join(allowed, "/"))
		}
		group.Questions[i].CorrectAnswer = answer
	}
	return nil
}

// assembleSingleChoice shuffles each question's own option list and
// re-derives the correct letter from the option's post-shuffle position.
func (s *AssemblerService) assembleSingleChoice(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, rng *rand.Rand) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	for i, rq := range rg.Questions {
		if len(rq.Options) < 2 {
			return contextutils.WrapErrorf(contextutils.ErrModelParse,
				"question %d has %d options, need at least 2", group.Questions[i].QuestionNumber, len(rq.Options))
		}
		idx := letterIndex(rq.CorrectAnswer)
		if idx < 0 || idx >= len(rq.Options) {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"question %d answer %q does not index into %d options",
				group.Questions[i].QuestionNumber, rq.CorrectAnswer, len(rq.Options))
		}
		shuffled, newIndex, err := shuffleWithMarkers(rng, rq.Options, []string{rq.Options[idx]})
		if err != nil {
			return contextutils.WrapErrorf(err, "question %d", group.Questions[i].QuestionNumber)
		}
		group.Questions[i].Options = shuffled
		group.Questions[i].CorrectAnswer = letterLabel(newIndex[0])
	}
	return nil
}

// fanOutMultiAnswer takes the model's single template question and expands
// it into max_answers question-number slots sharing text, options, and
// explanation.
func (s *AssemblerService) fanOutMultiAnswer(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, rng *rand.Rand) error {
	tmpl := rg.Questions[0]
	if strings.TrimSpace(tmpl.QuestionText) == "" {
		return contextutils.WrapError(contextutils.ErrModelParse, "multi-answer template question has no text")
	}
	n := in.QuestionCount
	if tmpl.MaxAnswers != 0 && tmpl.MaxAnswers != n {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"model set max_answers=%d but %d answers were requested", tmpl.MaxAnswers, n)
	}
	letters := splitLetters(tmpl.CorrectAnswer)
	if len(letters) != n {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"multi-answer question names %d correct letters, expected %d", len(letters), n)
	}
	seen := make(map[string]bool, len(letters))
	for _, letter := range letters {
		if seen[letter] {
			return contextutils.WrapErrorf(contextutils.ErrModelParse,
				"multi-answer question repeats correct letter %q", letter)
		}
		seen[letter] = true
	}
	if len(tmpl.Options) <= n {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"multi-answer option pool (%d) must be larger than the answer count (%d)", len(tmpl.Options), n)
	}

	correctTexts := make([]string, len(letters))
	for i, letter := range letters {
		idx := letterIndex(letter)
		if idx < 0 || idx >= len(tmpl.Options) {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"correct letter %q does not index into %d options", letter, len(tmpl.Options))
		}
		correctTexts[i] = tmpl.Options[idx]
	}

	shuffled, newIndex, err := shuffleWithMarkers(rng, tmpl.Options, correctTexts)
	if err != nil {
		return err
	}
	newLetters := make([]string, len(newIndex))
	for i, idx := range newIndex {
		newLetters[i] = letterLabel(idx)
	}
	sort.Strings(newLetters)
	answer := strings.Join(newLetters, ",")

	group.Questions = make([]models.Question, n)
	for i := 0; i < n; i++ {
		group.Questions[i] = models.Question{
			QuestionNumber: in.StartQuestion + i,
			QuestionText:   tmpl.QuestionText,
			CorrectAnswer:  answer,
			Explanation:    tmpl.Explanation,
			Options:        shuffled,
			MaxAnswers:     n,
		}
	}
	return nil
}

// assembleLetteredPool handles types whose group options carry one named
// pool that answers index into by letter (or roman numeral): shuffle the
// pool, then re-derive every answer label from the shuffled position.
func (s *AssemblerService) assembleLetteredPool(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, rng *rand.Rand, poolKey string, label func(int) string, index func(string) int) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	pool, err := stringSlice(rg.Options, poolKey)
	if err != nil {
		return err
	}
	if len(pool) <= in.QuestionCount {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"%s pool (%d) must be larger than the question count (%d)", poolKey, len(pool), in.QuestionCount)
	}

	// Resolve each answer to its option text before shuffling; letters are
	// meaningless across the shuffle boundary.
	markers := make([]string, len(group.Questions))
	for i := range group.Questions {
		idx := index(group.Questions[i].CorrectAnswer)
		if idx < 0 || idx >= len(pool) {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"question %d answer %q does not index into the %d-entry %s pool",
				group.Questions[i].QuestionNumber, group.Questions[i].CorrectAnswer, len(pool), poolKey)
		}
		markers[i] = pool[idx]
	}

	shuffled, newIndex, err := shuffleWithMarkers(rng, pool, markers)
	if err != nil {
		return err
	}
	group.Options[poolKey] = shuffled
	for i := range group.Questions {
		group.Questions[i].CorrectAnswer = label(newIndex[i])
	}
	return nil
}

// assembleParagraphMatching keeps paragraph letters as-is: they refer to
// positions in the passage, which cannot be shuffled.
func (s *AssemblerService) assembleParagraphMatching(group *models.QuestionGroup, rg *rawGroup, in AssembleInput) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	labels, err := stringSlice(rg.Options, "paragraph_labels")
	if err != nil {
		return err
	}
	valid := map[string]bool{}
	for _, l := range labels {
		valid[strings.ToUpper(strings.TrimSpace(l))] = true
	}
	for i := range group.Questions {
		answer := strings.ToUpper(group.Questions[i].CorrectAnswer)
		if !valid[answer] {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"question %d answer %q is not a listed paragraph label", group.Questions[i].QuestionNumber, answer)
		}
		group.Questions[i].CorrectAnswer = answer
	}
	return nil
}

// assembleMapLabeling validates letters against the fixed map positions and
// rejects a degenerate sequential assignment (1→A, 2→B, ...), which the
// prompt forbids but models occasionally produce anyway.
func (s *AssemblerService) assembleMapLabeling(group *models.QuestionGroup, rg *rawGroup, in AssembleInput) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	labels, err := stringSlice(rg.Options, "labels")
	if err != nil {
		return err
	}
	if len(labels) <= in.QuestionCount {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"map label pool (%d) must be larger than the question count (%d)", len(labels), in.QuestionCount)
	}

	valid := map[string]bool{}
	for _, l := range labels {
		valid[strings.ToUpper(strings.TrimSpace(l))] = true
	}
	sequential := len(group.Questions) >= 3
	for i := range group.Questions {
		answer := strings.ToUpper(group.Questions[i].CorrectAnswer)
		if !valid[answer] {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"question %d answer %q is not a map label", group.Questions[i].QuestionNumber, answer)
		}
		group.Questions[i].CorrectAnswer = answer
		if answer != letterLabel(i) {
			sequential = false
		}
	}
	if sequential {
		return contextutils.WrapError(contextutils.ErrSchemaInvariant,
			"map answers are assigned sequentially (1→A, 2→B, ...); regeneration required")
	}
	return nil
}

// assembleWordBank shuffles the drag pool. Answers are the bank texts
// themselves, so they survive the shuffle, but each must exist in the bank.
func (s *AssemblerService) assembleWordBank(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, rng *rand.Rand) error {
	if err := copyQuestions(group, rg, in); err != nil {
		return err
	}
	bank, err := stringSlice(rg.Options, "word_bank")
	if err != nil {
		return err
	}
	if len(bank) <= in.QuestionCount {
		return contextutils.WrapErrorf(contextutils.ErrModelParse,
			"word bank (%d) must be larger than the question count (%d)", len(bank), in.QuestionCount)
	}
	inBank := map[string]bool{}
	for _, w := range bank {
		inBank[strings.ToLower(strings.TrimSpace(w))] = true
	}
	for i := range group.Questions {
		if !inBank[strings.ToLower(group.Questions[i].CorrectAnswer)] {
			return contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"question %d answer %q is not in the word bank", group.Questions[i].QuestionNumber, group.Questions[i].CorrectAnswer)
		}
	}
	shuffled, _, err := shuffleWithMarkers(rng, bank, nil)
	if err != nil {
		return err
	}
	group.Options["word_bank"] = shuffled
	return validatePlaceholders(group, in)
}

func (s *AssemblerService) assembleSummary(group *models.QuestionGroup, rg *rawGroup, in AssembleInput, rng *rand.Rand) error {
	if _, hasBank := rg.Options["word_bank"]; hasBank {
		return s.assembleWordBank(group, rg, in, rng)
	}
	return s.assembleCompletion(group, rg, in)
}

// enrichWithImage generates and uploads the auxiliary figure. Failure is
// non-fatal: the textual description stays in options as the fallback.
func (s *AssemblerService) enrichWithImage(ctx context.Context, apiKey string, group *models.QuestionGroup, in AssembleInput) {
	if s.gateway == nil || s.storage == nil {
		return
	}
	descKey := map[string]string{
		models.MapLabeling:         "map_description",
		models.FlowchartCompletion: "flowchart_description",
		models.DiagramLabeling:     "diagram_description",
	}[in.QuestionType]
	desc, _ := group.Options[descKey].(string)
	if desc == "" {
		return
	}

	prompt, err := s.catalog.BuildImagePrompt(in.QuestionType, in.Topic, desc)
	if err != nil {
		s.logger.Warn(ctx, "Image prompt build failed, keeping text fallback", map[string]interface{}{"error": err.Error()})
		return
	}
	img, err := s.gateway.GenerateImage(ctx, apiKey, prompt)
	if err != nil {
		s.logger.Warn(ctx, "Image generation failed, keeping text fallback", map[string]interface{}{
			"question_type": in.QuestionType,
			"error":         err.Error(),
		})
		return
	}
	url, err := s.storage.UploadImage(ctx, img.Data, img.MimeType)
	if err != nil {
		s.logger.Warn(ctx, "Image upload failed, keeping text fallback", map[string]interface{}{
			"question_type": in.QuestionType,
			"error":         err.Error(),
		})
		return
	}
	group.ImageURL = url
}

// writingTaskResponse is the shape the writing prompts request.
type writingTaskResponse struct {
	Topic string `json:"topic"`
	Task  *struct {
		Instruction       string `json:"instruction"`
		VisualDescription string `json:"visual_description"`
		MinWords          int    `json:"min_words"`
	} `json:"task"`
}

// AssembleWritingTask builds one writing task. For Task 1 it generates the
// visual, uploading on success and falling back to the description text.
func (s *AssemblerService) AssembleWritingTask(ctx context.Context, apiKey string, raw []byte, taskNumber int, visualType string) (result0 *models.WritingTaskPrompt, result1 string, err error) {
	ctx, span := observability.TraceAssemblerFunction(ctx, "assemble_writing_task",
		attribute.Int("task.number", taskNumber))
	defer observability.FinishSpan(span, &err)

	var resp writingTaskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrModelParse, "writing task JSON did not parse: %w", err)
	}
	if resp.Task == nil || strings.TrimSpace(resp.Task.Instruction) == "" {
		return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "writing task has no instruction")
	}

	task := &models.WritingTaskPrompt{
		TaskNumber:  taskNumber,
		Instruction: resp.Task.Instruction,
		MinWords:    resp.Task.MinWords,
	}
	if taskNumber == 1 {
		if task.MinWords == 0 {
			task.MinWords = 150
		}
		task.TimeMinutes = 20
		task.VisualType = visualType
		if resp.Task.VisualDescription == "" {
			return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "task 1 has no visual description")
		}
		task.ImageFallback = resp.Task.VisualDescription
		if s.gateway != nil && s.storage != nil {
			if prompt, perr := s.catalog.BuildImagePrompt(visualType, resp.Topic, resp.Task.VisualDescription); perr == nil {
				if img, gerr := s.gateway.GenerateImage(ctx, apiKey, prompt); gerr == nil {
					if url, uerr := s.storage.UploadImage(ctx, img.Data, img.MimeType); uerr == nil {
						task.ImageURL = url
					} else {
						s.logger.Warn(ctx, "Task 1 image upload failed, using text fallback", map[string]interface{}{"error": uerr.Error()})
					}
				} else {
					s.logger.Warn(ctx, "Task 1 image generation failed, using text fallback", map[string]interface{}{"error": gerr.Error()})
				}
			}
		}
	} else {
		if task.MinWords == 0 {
			task.MinWords = 250
		}
		task.TimeMinutes = 40
	}
	return task, resp.Topic, nil
}

// speakingResponse is the shape the speaking prompt requests.
type speakingResponse struct {
	Topic string `json:"topic"`
	Parts []struct {
		Part        int             `json:"part"`
		Instruction string          `json:"instruction"`
		Questions   []string        `json:"questions"`
		CueCard     *models.CueCard `json:"cue_card"`
		PrepSeconds int             `json:"prep_seconds"`
		TalkSeconds int             `json:"talk_seconds"`
	} `json:"parts"`
}

// AssembleSpeaking builds the ordered speaking parts.
func (s *AssemblerService) AssembleSpeaking(ctx context.Context, raw []byte) (result0 []models.SpeakingPart, result1 string, err error) {
	_, span := observability.TraceAssemblerFunction(ctx, "assemble_speaking")
	defer observability.FinishSpan(span, &err)

	var resp speakingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrModelParse, "speaking JSON did not parse: %w", err)
	}
	if len(resp.Parts) == 0 {
		return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "speaking response has no parts")
	}

	parts := make([]models.SpeakingPart, 0, len(resp.Parts))
	for _, p := range resp.Parts {
		if p.Part < 1 || p.Part > 3 {
			return nil, "", contextutils.WrapErrorf(contextutils.ErrModelParse, "speaking part number %d out of range", p.Part)
		}
		part := models.SpeakingPart{
			Part:        p.Part,
			Instruction: p.Instruction,
			Questions:   p.Questions,
		}
		switch p.Part {
		case 2:
			if p.CueCard == nil || p.CueCard.Topic == "" {
				return nil, "", contextutils.WrapError(contextutils.ErrModelParse, "speaking part 2 has no cue card")
			}
			part.CueCard = p.CueCard
			part.PrepSeconds = p.PrepSeconds
			if part.PrepSeconds == 0 {
				part.PrepSeconds = 60
			}
			part.SpeakMinutes = (p.TalkSeconds + 59) / 60
			if part.SpeakMinutes == 0 {
				part.SpeakMinutes = 2
			}
		default:
			if len(p.Questions) == 0 {
				return nil, "", contextutils.WrapErrorf(contextutils.ErrModelParse, "speaking part %d has no questions", p.Part)
			}
			part.SpeakMinutes = 5
		}
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Part < parts[j].Part })
	return parts, resp.Topic, nil
}

// HumanizeTranscript replaces the literal Speaker1/Speaker2 role tokens
// with display names for the readable transcript. The raw tokens are what
// the TTS request needs, so the original string is what gets synthesized.
func HumanizeTranscript(transcript string, names map[string]string) string {
	for _, role := range []string{"Speaker1", "Speaker2"} {
		name := names[role]
		if name == "" {
			name = role
		}
		transcript = strings.ReplaceAll(transcript, role+":", name+":")
	}
	return transcript
}

// shuffleWithMarkers shuffles pool and reports where each marker text
// landed. Markers are matched by text, never by pre-shuffle position, which
// is what keeps answer labels valid after the shuffle.
func shuffleWithMarkers(rng *rand.Rand, pool, markers []string) ([]string, []int, error) {
	perm := rng.Perm(len(pool))
	shuffled := make([]string, len(pool))
	for newPos, origIdx := range perm {
		shuffled[newPos] = pool[origIdx]
	}

	newIndex := make([]int, len(markers))
	for i, marker := range markers {
		found := -1
		for pos, text := range shuffled {
			if text == marker {
				found = pos
				break
			}
		}
		if found < 0 {
			return nil, nil, contextutils.WrapErrorf(contextutils.ErrSchemaInvariant,
				"answer text %q not present in the option pool after shuffling", marker)
		}
		newIndex[i] = found
	}
	return shuffled, newIndex, nil
}

var placeholderPattern = regexp.MustCompile(`___(\d+)___`)

// validatePlaceholders checks that whatever display payload the model
// produced (paragraph text, bullets, grouped notes, table cells, summary,
// steps, form fields) contains each of the group's question numbers as a
// ___N___ placeholder exactly once — and no stray ones.
func validatePlaceholders(group *models.QuestionGroup, in AssembleInput) error {
	if len(group.Options) == 0 {
		return nil
	}
	blob, err := json.Marshal(group.Options)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrModelParse, "options payload not serializable: %w", err)
	}
	matches := placeholderPattern.FindAllStringSubmatch(string(blob), -1)
	if len(matches) == 0 {
		// No placeholder-style payload (e.g. plain completion with a bare
		// instruction option); nothing to check.
		return nil
	}

	seen := map[string]int{}
	for _, m := range matches {
		seen[m[1]]++
	}
	for n := in.StartQuestion; n <= in.StartQuestion+in.QuestionCount-1; n++ {
		key := fmt.Sprintf("%d", n)
		if seen[key] != 1 {
			return contextutils.WrapErrorf(contextutils.ErrModelParse,
				"placeholder ___%d___ appears %d times, expected exactly once", n, seen[key])
		}
		delete(seen, key)
	}
	if len(seen) != 0 {
		return contextutils.WrapError(contextutils.ErrModelParse,
			"options payload contains placeholders outside the question range")
	}
	return nil
}

func parseTestResponse(raw []byte) (*modelTestResponse, error) {
	var resp modelTestResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "model JSON did not parse: %w", err)
	}
	if resp.Group != nil && resp.Group.Options == nil {
		resp.Group.Options = map[string]interface{}{}
	}
	return &resp, nil
}

func pickTopic(modelTopic, requested string) string {
	if strings.TrimSpace(modelTopic) != "" {
		return modelTopic
	}
	return requested
}

// stringSlice pulls a []string out of the loosely-typed options payload.
func stringSlice(options map[string]interface{}, key string) ([]string, error) {
	rawList, ok := options[key]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "options payload is missing %q", key)
	}
	items, ok := rawList.([]interface{})
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "options %q is not a list", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, contextutils.WrapErrorf(contextutils.ErrModelParse, "options %q contains a non-string entry", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func letterLabel(i int) string {
	return string(rune('A' + i))
}

func letterIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return -1
	}
	return int(letter[0] - 'A')
}

var romanNumerals = []string{"i", "ii", "iii", "iv", "v", "vi", "vii", "viii", "ix", "x", "xi", "xii"}

func romanLabel(i int) string {
	if i >= 0 && i < len(romanNumerals) {
		return romanNumerals[i]
	}
	return fmt.Sprintf("%d", i+1)
}

func romanIndex(numeral string) int {
	numeral = strings.ToLower(strings.TrimSpace(numeral))
	for i, r := range romanNumerals {
		if numeral == r {
			return i
		}
	}
	return -1
}

func splitLetters(answer string) []string {
	parts := strings.Split(answer, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

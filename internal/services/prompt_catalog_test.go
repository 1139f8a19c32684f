package services

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"ieltsprep/internal/models"
	contextutils "ieltsprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *PromptCatalog {
	t.Helper()
	catalog, err := NewPromptCatalog()
	require.NoError(t, err)
	return catalog
}

func readingInput(questionType string) PromptInput {
	return PromptInput{
		Module:        models.ModuleReading,
		QuestionType:  questionType,
		Difficulty:    models.DifficultyMedium,
		Topic:         "urban beekeeping",
		QuestionCount: 5,
		TimeMinutes:   20,
		StartQuestion: 1,
		Seed:          42,
	}
}

func listeningInput(questionType string) PromptInput {
	return PromptInput{
		Module:        models.ModuleListening,
		QuestionType:  questionType,
		Difficulty:    models.DifficultyMedium,
		Topic:         "a gym membership enquiry",
		QuestionCount: 5,
		TimeMinutes:   4,
		StartQuestion: 1,
		Seed:          42,
		Listening:     &models.ListeningConfig{Speakers: 2},
	}
}

func TestBuildPrompt_CoversEveryReadingType(t *testing.T) {
	catalog := newTestCatalog(t)
	for _, qt := range models.ReadingQuestionTypes() {
		prompt, err := catalog.BuildPrompt(readingInput(qt))
		require.NoError(t, err, "type %s", qt)
		assert.Contains(t, prompt, "urban beekeeping", "type %s", qt)
		assert.Contains(t, prompt, "numbered 1 to 5", "type %s", qt)
		assert.Contains(t, prompt, "ONLY valid JSON", "type %s", qt)
		assert.Contains(t, prompt, `"passage"`, "type %s", qt)
	}
}

func TestBuildPrompt_CoversEveryListeningType(t *testing.T) {
	catalog := newTestCatalog(t)
	for _, qt := range models.ListeningQuestionTypes() {
		prompt, err := catalog.BuildPrompt(listeningInput(qt))
		require.NoError(t, err, "type %s", qt)
		assert.Contains(t, prompt, `"transcript"`, "type %s", qt)
		assert.Contains(t, prompt, "Speaker1:", "type %s", qt)
	}
}

func TestBuildPrompt_RejectsUnknownType(t *testing.T) {
	catalog := newTestCatalog(t)
	_, err := catalog.BuildPrompt(readingInput("ESSAY_QUESTION"))
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	// Listening-only types are not valid for reading.
	_, err = catalog.BuildPrompt(readingInput(models.MapLabeling))
	require.Error(t, err)
}

func TestBuildPrompt_IdempotentForFixedSeed(t *testing.T) {
	catalog := newTestCatalog(t)
	for _, qt := range []string{models.SentenceCompletion, models.SummaryCompletion, models.NoteCompletion} {
		in := readingInput(qt)
		a, err := catalog.BuildPrompt(in)
		require.NoError(t, err)
		b, err := catalog.BuildPrompt(in)
		require.NoError(t, err)
		assert.Equal(t, a, b, "type %s", qt)
	}
}

func TestBuildPrompt_WordLimitsVaryWithinTest(t *testing.T) {
	catalog := newTestCatalog(t)
	in := readingInput(models.ShortAnswer)
	in.QuestionCount = 6
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)

	re := regexp.MustCompile(`Question \d+: the answer must be (ONE WORD ONLY|NO MORE THAN TWO WORDS|NO MORE THAN THREE WORDS)`)
	matches := re.FindAllStringSubmatch(prompt, -1)
	require.Len(t, matches, 6)
	distinct := map[string]bool{}
	for _, m := range matches {
		distinct[m[1]] = true
	}
	assert.GreaterOrEqual(t, len(distinct), 2, "word limits must not be uniform across the test")
}

func TestBuildPrompt_ListeningWordTarget(t *testing.T) {
	catalog := newTestCatalog(t)

	in := listeningInput(models.FormCompletion)
	in.TimeMinutes = 4
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	// 4 minutes at 150 words per minute.
	assert.Contains(t, prompt, "Approximately 600 words")

	// Clamped at the TTS ceiling.
	in.TimeMinutes = 30
	prompt, err = catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Approximately 1200 words")

	// And at the floor.
	in.TimeMinutes = 0
	prompt, err = catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Approximately 100 words")
}

func TestBuildPrompt_MonologueVsDialogue(t *testing.T) {
	catalog := newTestCatalog(t)

	in := listeningInput(models.NoteCompletion)
	in.Listening = &models.ListeningConfig{Speakers: 1, Scenario: "a museum audio tour"}
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "monologue")
	assert.Contains(t, prompt, "a museum audio tour")
	assert.NotContains(t, prompt, "Speaker2")
	assert.Contains(t, prompt, "Do not spell out names")

	in.Listening = &models.ListeningConfig{Speakers: 2}
	prompt, err = catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "two-person dialogue")
	assert.Contains(t, prompt, `"Speaker2"`)
}

func TestBuildPrompt_SpellingMode(t *testing.T) {
	catalog := newTestCatalog(t)

	in := listeningInput(models.FormCompletion)
	in.Listening = &models.ListeningConfig{Speakers: 2, SpellingFocus: true}
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "letter-by-letter")
	assert.Contains(t, prompt, `if the speaker says "triple two" store "222"`)

	// Spelling mode only exists for dialogues.
	in.Listening = &models.ListeningConfig{Speakers: 1, SpellingFocus: true}
	prompt, err = catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "letter-by-letter")
}

func TestBuildPrompt_MapLabelingForbidsSequentialAnswers(t *testing.T) {
	catalog := newTestCatalog(t)
	prompt, err := catalog.BuildPrompt(listeningInput(models.MapLabeling))
	require.NoError(t, err)
	assert.Contains(t, prompt, "do NOT make the answers sequential")
	// 5 questions plus 2 distractor positions.
	assert.Contains(t, prompt, `["A"-"G"]`)
}

func TestBuildPrompt_MultipleChoiceMultipleFansOut(t *testing.T) {
	catalog := newTestCatalog(t)
	in := readingInput(models.MultipleChoiceMultiple)
	in.QuestionCount = 3
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "exactly ONE object")
	assert.Contains(t, prompt, `exactly 3 distinct letters`)
	assert.Contains(t, prompt, `"max_answers" to 3`)
	assert.Contains(t, prompt, `"Choose THREE letters"`)
}

func TestBuildPrompt_MatchingPoolsExceedQuestionCount(t *testing.T) {
	catalog := newTestCatalog(t)
	for _, qt := range []string{models.MatchingHeadings, models.MatchingFeatures, models.MatchingSentenceEndings} {
		in := readingInput(qt)
		in.QuestionCount = 4
		prompt, err := catalog.BuildPrompt(in)
		require.NoError(t, err)
		assert.Contains(t, prompt, "exactly 6", "type %s: pool must be question count + 2", qt)
	}
}

func TestBuildPrompt_TableCompletionSpreadsBlanks(t *testing.T) {
	catalog := newTestCatalog(t)
	prompt, err := catalog.BuildPrompt(readingInput(models.TableCompletion))
	require.NoError(t, err)
	assert.Contains(t, prompt, "at least two different columns")
}

func TestBuildPrompt_FillBlankDisplayStyles(t *testing.T) {
	catalog := newTestCatalog(t)
	styles := map[string]string{
		"PLAIN":     "free-standing note line",
		"PARAGRAPH": `"paragraph_text"`,
		"BULLETS":   `"bullet_items"`,
		"GROUPED":   `"grouped_sections"`,
		"NOTES":     `"note_sections"`,
	}
	for style, marker := range styles {
		in := readingInput(models.NoteCompletion)
		in.Reading = &models.ReadingConfig{FillBlankStyle: style}
		prompt, err := catalog.BuildPrompt(in)
		require.NoError(t, err)
		assert.Contains(t, prompt, marker, "style %s", style)
	}
}

func TestBuildPrompt_PassageProfileScalesWithDifficulty(t *testing.T) {
	catalog := newTestCatalog(t)

	in := readingInput(models.TrueFalseNotGiven)
	in.Difficulty = models.DifficultyEasy
	easy, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, easy, "Approximately 600 words")

	in.Difficulty = models.DifficultyExpert
	expert, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, expert, "Approximately 950 words")
}

func TestBuildWritingPrompt(t *testing.T) {
	catalog := newTestCatalog(t)
	in := PromptInput{
		Module:     models.ModuleWriting,
		Difficulty: models.DifficultyHard,
		Topic:      "international tourism",
		Writing:    &models.WritingConfig{VisualType: models.VisualBarChart},
	}

	task1, err := catalog.BuildWritingPrompt(in, models.WritingTask1)
	require.NoError(t, err)
	assert.Contains(t, task1, "bar chart")
	assert.Contains(t, task1, "at least 150 words")
	assert.Contains(t, task1, `"visual_description"`)

	task2, err := catalog.BuildWritingPrompt(in, models.WritingTask2)
	require.NoError(t, err)
	assert.Contains(t, task2, "at least 250 words")
	assert.NotContains(t, task2, "visual_description")
}

func TestBuildWritingPrompt_RandomVisualMustBeResolved(t *testing.T) {
	catalog := newTestCatalog(t)
	in := PromptInput{
		Module:  models.ModuleWriting,
		Topic:   "energy use",
		Writing: &models.WritingConfig{VisualType: models.VisualRandom},
	}
	_, err := catalog.BuildWritingPrompt(in, models.WritingTask1)
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))
}

func TestBuildSpeakingPrompt(t *testing.T) {
	catalog := newTestCatalog(t)
	in := PromptInput{
		Module:        models.ModuleSpeaking,
		Difficulty:    models.DifficultyMedium,
		Topic:         "hobbies and free time",
		SpeakingParts: []int{1, 2, 3},
	}
	prompt, err := catalog.BuildSpeakingPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Part 1, Part 2, Part 3")
	assert.Contains(t, prompt, "cue card")
	assert.Contains(t, prompt, `"prep_seconds": 60`)
	assert.Contains(t, prompt, `"talk_seconds": 120`)

	single, err := catalog.BuildSpeakingPrompt(PromptInput{Topic: "travel", SpeakingParts: []int{2}})
	require.NoError(t, err)
	assert.Contains(t, single, "Describe ...")
	assert.NotContains(t, single, "Part 3:")
}

func TestBuildImagePrompt(t *testing.T) {
	catalog := newTestCatalog(t)
	prompt, err := catalog.BuildImagePrompt(models.MapLabeling, "a leisure centre",
		"Main entrance at the south, reception ahead, pool to the east marked B.")
	require.NoError(t, err)
	assert.Contains(t, prompt, "facility map with lettered locations")
	assert.Contains(t, prompt, "a leisure centre")
	assert.Contains(t, prompt, "pool to the east marked B")
	assert.Contains(t, prompt, "white background")
}

func TestScriptWordTarget(t *testing.T) {
	cases := []struct {
		minutes int
		want    int
	}{
		{1, 150},
		{4, 600},
		{8, 1200},
		{0, 100},
		{60, 1200},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, scriptWordTarget(tc.minutes), "minutes=%d", tc.minutes)
	}
}

func TestWordLimitPlan_NeverUniformForThreePlus(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		in := readingInput(models.SentenceCompletion)
		in.Seed = seed
		catalog := newTestCatalog(t)
		prompt, err := catalog.BuildPrompt(in)
		require.NoError(t, err)

		distinct := map[string]bool{}
		for _, phrase := range []string{"ONE WORD ONLY", "NO MORE THAN TWO WORDS", "NO MORE THAN THREE WORDS"} {
			if strings.Contains(prompt, fmt.Sprintf("the answer must be %s", phrase)) {
				distinct[phrase] = true
			}
		}
		require.GreaterOrEqual(t, len(distinct), 2, "seed %d produced uniform word limits", seed)
	}
}

func TestBuildPrompt_StartQuestionOffset(t *testing.T) {
	catalog := newTestCatalog(t)
	in := readingInput(models.TrueFalseNotGiven)
	in.StartQuestion = 6
	in.QuestionCount = 4
	prompt, err := catalog.BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "numbered 6 to 9")
	assert.Contains(t, prompt, "values run from 6 to 9")
}

package services

import (
	"fmt"
	"math/rand"
	"strings"

	"ieltsprep/internal/config"
	"ieltsprep/internal/models"
	contextutils "ieltsprep/internal/utils"
)

// PromptInput is everything a prompt builder may consume. BuildPrompt is a
// pure function of this struct: the only randomness (word-limit variety,
// answer-placement hints) is drawn from Seed, so identical inputs always
// produce identical prompts.
type PromptInput struct {
	Module        models.Module
	QuestionType  string
	Difficulty    models.Difficulty
	Topic         string
	QuestionCount int
	TimeMinutes   int
	StartQuestion int
	Seed          int64

	Reading   *models.ReadingConfig
	Listening *models.ListeningConfig
	Writing   *models.WritingConfig

	// SpeakingParts holds the resolved part numbers for speaking requests.
	SpeakingParts []int
}

func (in *PromptInput) endQuestion() int {
	return in.StartQuestion + in.QuestionCount - 1
}

// typeSpec is one row of the catalog table: the per-type contract the model
// must follow, produced from the input plus a seeded source of variety.
type typeSpec struct {
	build func(in *PromptInput, rng *rand.Rand) (instruction, schema string, rules []string)
}

// PromptCatalog maps (module, question type) to a rendered prompt. The
// per-type branching lives in the table; the surrounding passage/script
// framing lives in the templates.
type PromptCatalog struct {
	templates *PromptTemplateManager
	table     map[string]typeSpec
}

// NewPromptCatalog parses the embedded templates and builds the type table.
func NewPromptCatalog() (result0 *PromptCatalog, err error) {
	tm, err := NewPromptTemplateManager()
	if err != nil {
		return nil, err
	}

	c := &PromptCatalog{templates: tm}
	c.table = map[string]typeSpec{
		models.TrueFalseNotGiven:       {build: c.buildTrueFalseNotGiven},
		models.YesNoNotGiven:           {build: c.buildYesNoNotGiven},
		models.MultipleChoiceSingle:    {build: c.buildMultipleChoiceSingle},
		models.MultipleChoiceMultiple:  {build: c.buildMultipleChoiceMultiple},
		models.MatchingHeadings:        {build: c.buildMatchingHeadings},
		models.MatchingInformation:     {build: c.buildMatchingInformation},
		models.MatchingFeatures:        {build: c.buildMatchingFeatures},
		models.MatchingSentenceEndings: {build: c.buildMatchingSentenceEndings},
		models.SentenceCompletion:      {build: c.buildSentenceCompletion},
		models.SummaryCompletion:       {build: c.buildSummaryCompletion},
		models.NoteCompletion:          {build: c.buildNoteCompletion},
		models.TableCompletion:         {build: c.buildTableCompletion},
		models.FlowchartCompletion:     {build: c.buildFlowchartCompletion},
		models.DiagramLabeling:         {build: c.buildDiagramLabeling},
		models.ShortAnswer:             {build: c.buildShortAnswer},
		models.FormCompletion:          {build: c.buildFormCompletion},
		models.MapLabeling:             {build: c.buildMapLabeling},
		models.Matching:                {build: c.buildMatching},
	}
	return c, nil
}

// BuildPrompt renders the full generation prompt for a reading or listening
// request. Writing and speaking have their own entry points below because
// their output is not a passage-plus-question-group shape.
func (c *PromptCatalog) BuildPrompt(in PromptInput) (string, error) {
	if !models.IsValidQuestionType(in.Module, in.QuestionType) {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput,
			"question type %q is not supported for module %q", in.QuestionType, in.Module)
	}
	if in.QuestionCount < 1 {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "questionCount must be at least 1")
	}
	if in.StartQuestion < 1 {
		in.StartQuestion = 1
	}

	spec, ok := c.table[in.QuestionType]
	if !ok {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput,
			"no prompt builder registered for question type %q", in.QuestionType)
	}

	rng := rand.New(rand.NewSource(in.Seed))
	instruction, schema, rules := spec.build(&in, rng)

	data := PromptTemplateData{
		Difficulty:      string(in.Difficulty),
		Topic:           in.Topic,
		QuestionCount:   in.QuestionCount,
		StartQuestion:   in.StartQuestion,
		EndQuestion:     in.endQuestion(),
		TimeMinutes:     in.TimeMinutes,
		TypeInstruction: instruction,
		SchemaExample:   schema,
		Rules:           append(rules, commonRules(&in)...),
	}

	switch in.Module {
	case models.ModuleReading:
		data.PassageWords, data.ParagraphCount = passageProfile(in.Difficulty, in.Reading)
		return c.templates.RenderTemplate(ReadingPromptTemplate, data)
	case models.ModuleListening:
		speakers := 1
		if in.Listening != nil && in.Listening.Speakers == 2 {
			speakers = 2
		}
		data.Speakers = speakers
		data.TranscriptWords = scriptWordTarget(in.TimeMinutes)
		if in.Listening != nil {
			data.Scenario = in.Listening.Scenario
			data.SpellingFocus = speakers == 2 && in.Listening.SpellingFocus
		}
		return c.templates.RenderTemplate(ListeningPromptTemplate, data)
	default:
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput,
			"module %q does not use the question-type catalog", in.Module)
	}
}

// BuildWritingPrompt renders the prompt for one writing task. VisualType
// must already be concrete: RANDOM is resolved by the caller so this stays
// a pure function.
func (c *PromptCatalog) BuildWritingPrompt(in PromptInput, task string) (string, error) {
	data := PromptTemplateData{
		Difficulty: string(in.Difficulty),
		Topic:      in.Topic,
	}

	switch task {
	case models.WritingTask1:
		visual := ""
		if in.Writing != nil {
			visual = in.Writing.VisualType
		}
		if visual == "" || visual == models.VisualRandom {
			return "", contextutils.WrapError(contextutils.ErrInvalidInput,
				"writing task 1 requires a concrete visual type")
		}
		data.VisualType = visualLabel(visual)
		data.MinWords = 150
		data.SchemaExample = writingTaskSchema(true)
		data.Rules = []string{
			`instruction must NOT mention that the visual is described in text; write it as if the candidate sees the figure.`,
		}
		return c.templates.RenderTemplate(WritingTask1Template, data)
	case models.WritingTask2:
		data.MinWords = 250
		data.SchemaExample = writingTaskSchema(false)
		return c.templates.RenderTemplate(WritingTask2Template, data)
	default:
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown writing task %q", task)
	}
}

// BuildSpeakingPrompt renders the prompt for the requested speaking parts.
func (c *PromptCatalog) BuildSpeakingPrompt(in PromptInput) (string, error) {
	if len(in.SpeakingParts) == 0 {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "no speaking parts requested")
	}
	data := PromptTemplateData{
		Difficulty:    string(in.Difficulty),
		Topic:         in.Topic,
		Parts:         in.SpeakingParts,
		SchemaExample: speakingSchema(in.SpeakingParts),
		Rules: []string{
			`Every question is a single sentence ending in a question mark.`,
			`Questions must not require specialist knowledge; any adult could answer from ordinary experience.`,
		},
	}
	return c.templates.RenderTemplate(SpeakingPromptTemplate, data)
}

// BuildImagePrompt renders the descriptive prompt for an auxiliary exam
// figure (map, flowchart, diagram, or a writing Task 1 chart).
func (c *PromptCatalog) BuildImagePrompt(kind, subject, description string) (string, error) {
	style := map[string]string{
		models.MapLabeling:         "facility map with lettered locations",
		models.FlowchartCompletion: "flowchart with sequential stages connected by arrows",
		models.DiagramLabeling:     "technical diagram with numbered label lines",
		models.VisualBarChart:      "bar chart",
		models.VisualLineGraph:     "line graph",
		models.VisualPieChart:      "pie chart",
		models.VisualTable:         "data table",
		models.VisualProcess:       "process diagram",
		models.VisualMap:           "before-and-after map pair",
	}[kind]
	if style == "" {
		style = "figure"
	}
	return c.templates.RenderTemplate(ImagePromptTemplate, PromptTemplateData{
		Style:       style,
		Subject:     subject,
		Description: description,
	})
}

// passageProfile picks the passage word and paragraph targets for the
// difficulty, honoring an explicit paragraph-count override.
func passageProfile(d models.Difficulty, rc *models.ReadingConfig) (words, paragraphs int) {
	switch d {
	case models.DifficultyEasy:
		words, paragraphs = 600, 5
	case models.DifficultyMedium:
		words, paragraphs = 750, 6
	case models.DifficultyHard:
		words, paragraphs = 850, 7
	default:
		words, paragraphs = 950, 7
	}
	if rc != nil && rc.ParagraphCount >= 3 && rc.ParagraphCount <= 9 {
		paragraphs = rc.ParagraphCount
	}
	return words, paragraphs
}

// scriptWordTarget converts the requested audio duration into a word target
// at natural speaking pace, clamped to what the TTS model handles reliably.
func scriptWordTarget(timeMinutes int) int {
	words := timeMinutes * 60 * config.SpokenWordsPerMinute / 60
	if words < config.MinScriptWords {
		return config.MinScriptWords
	}
	if words > config.MaxScriptWords {
		return config.MaxScriptWords
	}
	return words
}

// wordLimitPlan assigns each completion question a 1, 2, or 3 word cap.
// Real papers mix limits within one task, so for 3+ questions the plan is
// forced to contain at least two distinct values.
func wordLimitPlan(rng *rand.Rand, n int) []int {
	limits := make([]int, n)
	for i := range limits {
		limits[i] = 1 + rng.Intn(3)
	}
	if n >= 3 {
		uniform := true
		for _, l := range limits[1:] {
			if l != limits[0] {
				uniform = false
				break
			}
		}
		if uniform {
			limits[n-1] = limits[0]%3 + 1
		}
	}
	return limits
}

func wordLimitPhrase(limit int) string {
	switch limit {
	case 1:
		return "ONE WORD ONLY"
	case 2:
		return "NO MORE THAN TWO WORDS AND/OR A NUMBER"
	default:
		return "NO MORE THAN THREE WORDS AND/OR A NUMBER"
	}
}

func wordLimitRules(in *PromptInput, rng *rand.Rand) []string {
	limits := wordLimitPlan(rng, in.QuestionCount)
	rules := make([]string, 0, in.QuestionCount+1)
	for i, limit := range limits {
		rules = append(rules, fmt.Sprintf("Question %d: the answer must be %s taken directly from the text.",
			in.StartQuestion+i, wordLimitPhrase(limit)))
	}
	rules = append(rules,
		"State each question's word limit inside its question_text, e.g. \"(ONE WORD ONLY)\".")
	return rules
}

func commonRules(in *PromptInput) []string {
	return []string{
		fmt.Sprintf("question_number values run from %d to %d with no gaps or duplicates.", in.StartQuestion, in.endQuestion()),
		"Every question has a concise explanation quoting or paraphrasing the exact part of the text that proves the answer.",
		"Use plain double-quoted JSON strings; no trailing commas; no comments.",
	}
}

// letterPool returns "A", "B", ... of the given size.
func letterPool(n int) []string {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = string(rune('A' + i))
	}
	return pool
}

// --- per-type builders -------------------------------------------------

func (c *PromptCatalog) buildTrueFalseNotGiven(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	instruction := "Question type: TRUE / FALSE / NOT GIVEN. Each question is a factual statement the candidate checks against the passage."
	rules := []string{
		`correct_answer is exactly one of "TRUE", "FALSE", "NOT GIVEN".`,
		"Use all three answer values at least once when the question count allows it; never make every answer the same.",
		"Statements appear in the same order as the relevant passage sections.",
		`"NOT GIVEN" statements must be plausible but genuinely unverifiable from the passage, not merely false.`,
	}
	return instruction, tfngSchema(in, `"TRUE"`), rules
}

func (c *PromptCatalog) buildYesNoNotGiven(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	instruction := "Question type: YES / NO / NOT GIVEN. Each question is a claim about the writer's views or opinions, not bare facts."
	rules := []string{
		`correct_answer is exactly one of "YES", "NO", "NOT GIVEN".`,
		"The passage must contain an identifiable authorial stance for YES/NO items to test.",
		"Use all three answer values at least once when the question count allows it.",
	}
	return instruction, tfngSchema(in, `"YES"`), rules
}

func (c *PromptCatalog) buildMultipleChoiceSingle(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	instruction := "Question type: multiple choice, one answer. Each question offers four options, exactly one correct."
	rules := []string{
		`Each question's "options" array holds exactly 4 option texts WITHOUT letter prefixes; the first is A, the second B, and so on.`,
		`correct_answer is a single letter "A"-"D".`,
		"Spread the correct letters: the same letter must not be correct for more than half the questions.",
		"Wrong options must be plausible misreadings of the text, not obviously absurd.",
	}
	return instruction, mcqSchema(in, 1), rules
}

func (c *PromptCatalog) buildMultipleChoiceMultiple(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	n := in.QuestionCount
	instruction := fmt.Sprintf(
		"Question type: multiple choice, multiple answers. Produce ONE question asking the candidate to choose %d correct options from a list of %d.",
		n, n+3)
	rules := []string{
		fmt.Sprintf(`Return exactly ONE object in "questions". Its "options" array holds %d option texts without letter prefixes.`, n+3),
		fmt.Sprintf(`correct_answer is a comma-separated list of exactly %d distinct letters, e.g. "A,C,E", in alphabetical order.`, n),
		fmt.Sprintf(`Set "max_answers" to %d.`, n),
		fmt.Sprintf(`The instruction field must say "Choose %s letters".`, strings.ToUpper(numberWord(n))),
	}
	return instruction, mcqSchema(in, n), rules
}

func (c *PromptCatalog) buildMatchingHeadings(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := fmt.Sprintf(
		"Question type: matching headings. The candidate matches each listed paragraph to one heading from a pool of %d (including 2 distractor headings matching nothing).",
		pool)
	rules := []string{
		fmt.Sprintf(`"options" contains a "headings" array of exactly %d heading texts WITHOUT numerals; position 1 is heading i, position 2 is ii, and so on.`, pool),
		`Each question's question_text names one paragraph, e.g. "Paragraph B"; correct_answer is the roman numeral of its heading ("i", "ii", ...).`,
		"No heading is the correct answer for two paragraphs.",
		"Headings summarise a paragraph's main idea, not a detail mentioned in passing.",
		"Label the passage paragraphs A, B, C... in the content.",
	}
	return instruction, matchingHeadingsSchema(in, pool), rules
}

func (c *PromptCatalog) buildMatchingInformation(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	instruction := "Question type: matching information. Each question states a piece of information; the candidate names the paragraph containing it."
	rules := []string{
		`"options" contains a "paragraph_labels" array listing the passage's paragraph letters, e.g. ["A","B","C","D","E","F"].`,
		`correct_answer is a single paragraph letter.`,
		"A paragraph letter may be the answer to more than one question; say so in the instruction (\"You may use any letter more than once\").",
		"Label the passage paragraphs A, B, C... in the content.",
		"The information statements paraphrase the passage; never reuse its exact wording.",
	}
	return instruction, matchingInformationSchema(in), rules
}

func (c *PromptCatalog) buildMatchingFeatures(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := fmt.Sprintf(
		"Question type: matching features. The passage discusses several named people, places, or categories; the candidate matches each statement to one of them from a pool of %d.", pool)
	rules := []string{
		fmt.Sprintf(`"options" contains a "features" array of exactly %d feature names WITHOUT letter prefixes; position 1 is A, position 2 is B, and so on. Include %d distractors matching no statement.`, pool, 2),
		`correct_answer is a single letter indexing into the features list.`,
		"Every non-distractor feature must be attributable from explicit passage content.",
	}
	return instruction, matchingFeaturesSchema(in, pool), rules
}

func (c *PromptCatalog) buildMatchingSentenceEndings(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := fmt.Sprintf(
		"Question type: matching sentence endings. Each question is an unfinished sentence; the candidate completes it with one ending from a pool of %d.", pool)
	rules := []string{
		fmt.Sprintf(`"options" contains an "endings" array of exactly %d sentence endings WITHOUT letter prefixes; position 1 is A, position 2 is B, and so on. Include 2 distractor endings.`, pool),
		`correct_answer is a single letter indexing into the endings list.`,
		"Every beginning-plus-correct-ending combination must be grammatical AND supported by the passage; distractor endings must be grammatical but unsupported.",
		"Question beginnings follow passage order.",
	}
	return instruction, matchingEndingsSchema(in, pool), rules
}

func (c *PromptCatalog) buildSentenceCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	instruction := "Question type: sentence completion. Each question is a sentence from which a short phrase is missing, shown as a blank."
	rules := append([]string{
		`Each question_text contains exactly one blank written as "__________".`,
		"The completed sentence must paraphrase the text, not quote it verbatim.",
	}, wordLimitRules(in, rng)...)
	return instruction, completionSchema(in, ""), rules
}

func (c *PromptCatalog) buildSummaryCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	useBank := rng.Intn(2) == 0
	n := in.QuestionCount
	var instruction, schema string
	var rules []string
	if useBank {
		pool := n + 3
		instruction = fmt.Sprintf(
			"Question type: summary completion with a word bank. Write a one-paragraph summary of part of the text with %d numbered gaps, filled from a bank of %d words or short phrases.", n, pool)
		rules = []string{
			fmt.Sprintf(`"options" contains "summary" {"title", "text"} and a "word_bank" array of exactly %d entries (%d distractors). The text contains placeholders ___%d___ through ___%d___, each exactly once.`,
				pool, 3, in.StartQuestion, in.endQuestion()),
			"correct_answer for each question is the exact word-bank entry, letter-for-letter.",
			"Word-bank entries are lowercase unless a proper noun.",
		}
		schema = summarySchema(in, true)
	} else {
		instruction = fmt.Sprintf(
			"Question type: summary completion from the text. Write a one-paragraph summary of part of the text with %d numbered gaps; answers come directly from the text.", n)
		rules = append([]string{
			fmt.Sprintf(`"options" contains "summary" {"title", "text"}. The text contains placeholders ___%d___ through ___%d___, each exactly once.`,
				in.StartQuestion, in.endQuestion()),
		}, wordLimitRules(in, rng)...)
		schema = summarySchema(in, false)
	}
	rules = append(rules, `Each question's question_text restates its gap's immediate context, e.g. "Gap 3: the machine was powered by ___".`)
	return instruction, schema, rules
}

func (c *PromptCatalog) buildNoteCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	style := "NOTES"
	if in.Reading != nil && in.Reading.FillBlankStyle != "" {
		style = in.Reading.FillBlankStyle
	}
	instruction := "Question type: note completion. The candidate fills numbered gaps in a set of study notes summarising the text."
	rules := wordLimitRules(in, rng)
	var schema string
	switch style {
	case "PLAIN":
		schema = completionSchema(in, "")
		rules = append(rules, `Each question_text is one free-standing note line containing exactly one "__________" blank; no shared layout payload.`)
	case "PARAGRAPH":
		schema = completionSchema(in, paragraphOptions(in))
		rules = append(rules, fmt.Sprintf(`"options" contains "paragraph_text": one continuous prose summary with placeholders ___%d___ through ___%d___, each exactly once.`, in.StartQuestion, in.endQuestion()))
	case "BULLETS":
		schema = completionSchema(in, bulletOptions(in))
		rules = append(rules, fmt.Sprintf(`"options" contains "bullet_items": an array of short note lines; across them the placeholders ___%d___ through ___%d___ each appear exactly once.`, in.StartQuestion, in.endQuestion()))
	case "GROUPED":
		schema = completionSchema(in, groupedOptions(in, "grouped_sections"))
		rules = append(rules, fmt.Sprintf(`"options" contains "grouped_sections": an array of {"heading", "items"} groups; across all items the placeholders ___%d___ through ___%d___ each appear exactly once, and no group holds more than half of them.`, in.StartQuestion, in.endQuestion()))
	default: // NOTES
		schema = completionSchema(in, groupedOptions(in, "note_sections"))
		rules = append(rules, fmt.Sprintf(`"options" contains "note_sections": an array of {"heading", "items"} note categories; across all items the placeholders ___%d___ through ___%d___ each appear exactly once.`, in.StartQuestion, in.endQuestion()))
	}
	return instruction, schema, rules
}

func (c *PromptCatalog) buildTableCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	instruction := "Question type: table completion. The candidate fills numbered gaps in a table summarising the text."
	rules := append([]string{
		fmt.Sprintf(`"options" contains "table": {"title", "headers", "rows"} where rows is an array of string arrays. Cell gaps are written ___%d___ through ___%d___, each exactly once.`, in.StartQuestion, in.endQuestion()),
		"Distribute the gaps across at least two different columns and at least two different rows; never put every gap in one column.",
		"Non-gap cells carry real content from the text, so the table reads as a genuine summary.",
	}, wordLimitRules(in, rng)...)
	return instruction, tableSchema(in), rules
}

func (c *PromptCatalog) buildFlowchartCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := "Question type: flowchart completion. The text describes a process; the candidate fills numbered gaps in a flowchart of its stages, choosing from a shuffleable word pool."
	rules := append([]string{
		fmt.Sprintf(`"options" contains "steps": an array of 4-8 short stage descriptions in process order, containing placeholders ___%d___ through ___%d___, each exactly once; and "word_bank": exactly %d candidate words or short phrases (2 distractors).`,
			in.StartQuestion, in.endQuestion(), pool),
		`correct_answer for each question is the exact word-bank entry.`,
		`"flowchart_description" describes the process visually (stage boxes, arrows, branch points) so an illustrator could draw it.`,
	}, wordLimitRules(in, rng)...)
	return instruction, flowchartSchema(in, pool), rules
}

func (c *PromptCatalog) buildDiagramLabeling(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := "Question type: diagram labeling. The text describes a structure or mechanism; the candidate matches each numbered part to a label from a lettered pool."
	rules := []string{
		fmt.Sprintf(`"options" contains "labels": an array of exactly %d part names WITHOUT letter prefixes (2 distractors); position 1 is A, position 2 is B, and so on.`, pool),
		`correct_answer is a single letter indexing into the labels list.`,
		"Do NOT assign letters in question order (1→A, 2→B, ...); the mapping between question numbers and letters must look arbitrary.",
		`"diagram_description" describes the structure and where each numbered pointer sits, precisely enough to draw.`,
	}
	return instruction, diagramSchema(in, pool), rules
}

func (c *PromptCatalog) buildShortAnswer(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	instruction := "Question type: short answer. Each question is a direct wh-question answered with a short phrase from the text."
	rules := append([]string{
		"Questions follow text order and never overlap in subject matter.",
	}, wordLimitRules(in, rng)...)
	return instruction, completionSchema(in, ""), rules
}

func (c *PromptCatalog) buildFormCompletion(in *PromptInput, rng *rand.Rand) (string, string, []string) {
	instruction := "Question type: form completion. The conversation fills in an official form (booking, application, enquiry); the candidate completes the numbered fields."
	rules := append([]string{
		fmt.Sprintf(`"options" contains "form": {"title", "fields"} where fields is an array of {"label", "value"}. Completed fields carry their real value; gap fields carry ___%d___ through ___%d___, each exactly once.`,
			in.StartQuestion, in.endQuestion()),
		"Include 2-3 completed example fields before the first gap so the form looks real.",
		"Answers include at least one number (phone, date, price, reference) and at least one name or word.",
	}, wordLimitRules(in, rng)...)
	return instruction, formSchema(in), rules
}

func (c *PromptCatalog) buildMapLabeling(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := "Question type: map labeling. The speaker gives directions around a place (campus, building, park, town centre); the candidate matches each numbered location to a letter on the map."
	rules := []string{
		fmt.Sprintf(`"options" contains "labels": the letters ["A"-"%s"] marking positions on the map, and "map_description": the layout in drawable detail (entrances, paths, landmarks, where each letter sits).`,
			string(rune('A'+pool-1))),
		`correct_answer is a single letter from the labels list.`,
		"CRITICAL: do NOT make the answers sequential or alphabetical with respect to question order (never 1→A, 2→B, 3→C). Scatter the correct letters.",
		fmt.Sprintf("Two of the %d letters are distractor positions that are described on the map but never an answer.", pool),
		"The script must mention each target location's position relative to landmarks, in question order.",
	}
	return instruction, mapSchema(in, pool), rules
}

func (c *PromptCatalog) buildMatching(in *PromptInput, _ *rand.Rand) (string, string, []string) {
	pool := in.QuestionCount + 2
	instruction := fmt.Sprintf(
		"Question type: matching. The candidate matches each numbered item mentioned by the speakers to one option from a lettered pool of %d.", pool)
	rules := []string{
		fmt.Sprintf(`"options" contains "matching_options": an array of exactly %d option texts WITHOUT letter prefixes (2 distractors); position 1 is A, position 2 is B, and so on.`, pool),
		`correct_answer is a single letter indexing into the matching options.`,
		"The script must state each pairing explicitly, in question order, without using the option letters aloud.",
	}
	return instruction, matchingListeningSchema(in, pool), rules
}

// --- schema examples ---------------------------------------------------

// envelope wraps a question-group schema in the module-level response shape.
func envelope(in *PromptInput, groupBody string) string {
	if in.Module == models.ModuleListening {
		transcript := `Speaker1: ...`
		names := `{"Speaker1": "<natural first name>"}`
		if in.Listening != nil && in.Listening.Speakers == 2 {
			transcript = `Speaker1: ...\nSpeaker2: ...`
			names = `{"Speaker1": "<natural first name>", "Speaker2": "<natural first name>"}`
		}
		return fmt.Sprintf(`{
  "transcript": "%s",
  "speaker_names": %s,
  "topic": "<short topic label>",
  "question_group": %s
}`, transcript, names, groupBody)
	}
	return fmt.Sprintf(`{
  "passage": {"title": "<title>", "content": "<the full passage>"},
  "topic": "<short topic label>",
  "question_group": %s
}`, groupBody)
}

func groupSchema(in *PromptInput, optionsBody, questionExtra string) string {
	return fmt.Sprintf(`{
    "instruction": "<task instruction shown to the candidate>",%s
    "questions": [
      {"question_number": %d, "question_text": "...", "correct_answer": "...", "explanation": "..."%s}
    ]
  }`, optionsBody, in.StartQuestion, questionExtra)
}

func tfngSchema(in *PromptInput, example string) string {
	body := fmt.Sprintf(`{
    "instruction": "<task instruction>",
    "questions": [
      {"question_number": %d, "question_text": "<statement>", "correct_answer": %s, "explanation": "..."}
    ]
  }`, in.StartQuestion, example)
	return envelope(in, body)
}

func mcqSchema(in *PromptInput, maxAnswers int) string {
	extra := `, "options": ["<option text>", "..."]`
	if maxAnswers > 1 {
		extra += fmt.Sprintf(`, "max_answers": %d`, maxAnswers)
	}
	return envelope(in, groupSchema(in, "", extra))
}

func matchingHeadingsSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"headings": [%s]},`, placeholderList("<heading text>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func matchingInformationSchema(in *PromptInput) string {
	opts := `
    "options": {"paragraph_labels": ["A", "B", "C", "..."]},`
	return envelope(in, groupSchema(in, opts, ""))
}

func matchingFeaturesSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"features": [%s]},`, placeholderList("<feature name>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func matchingEndingsSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"endings": [%s]},`, placeholderList("<sentence ending>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func completionSchema(in *PromptInput, optionsBody string) string {
	return envelope(in, groupSchema(in, optionsBody, ""))
}

func paragraphOptions(in *PromptInput) string {
	return fmt.Sprintf(`
    "options": {"paragraph_text": "<summary prose containing ___%d___ ... ___%d___>"},`,
		in.StartQuestion, in.endQuestion())
}

func bulletOptions(in *PromptInput) string {
	return fmt.Sprintf(`
    "options": {"bullet_items": ["<note line with ___%d___>", "..."]},`, in.StartQuestion)
}

func groupedOptions(in *PromptInput, field string) string {
	return fmt.Sprintf(`
    "options": {"%s": [{"heading": "<category>", "items": ["<note line with ___%d___>", "..."]}]},`,
		field, in.StartQuestion)
}

func summarySchema(in *PromptInput, withBank bool) string {
	opts := fmt.Sprintf(`
    "options": {"summary": {"title": "<summary title>", "text": "<summary containing ___%d___ ... ___%d___>"}%s},`,
		in.StartQuestion, in.endQuestion(),
		map[bool]string{true: `, "word_bank": ["<word or phrase>", "..."]`, false: ""}[withBank])
	return envelope(in, groupSchema(in, opts, ""))
}

func tableSchema(in *PromptInput) string {
	opts := fmt.Sprintf(`
    "options": {"table": {"title": "<table title>", "headers": ["<col>", "..."], "rows": [["<cell>", "___%d___", "<cell>"]]}},`,
		in.StartQuestion)
	return envelope(in, groupSchema(in, opts, ""))
}

func flowchartSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"steps": ["<stage with ___%d___>", "..."], "word_bank": [%s], "flowchart_description": "<drawable description of the process>"},`,
		in.StartQuestion, placeholderList("<word>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func diagramSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"labels": [%s], "diagram_description": "<drawable description of the structure>"},`,
		placeholderList("<part name>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func formSchema(in *PromptInput) string {
	opts := fmt.Sprintf(`
    "options": {"form": {"title": "<form title>", "fields": [{"label": "Name", "value": "<completed example>"}, {"label": "<field>", "value": "___%d___"}]}},`,
		in.StartQuestion)
	return envelope(in, groupSchema(in, opts, ""))
}

func mapSchema(in *PromptInput, pool int) string {
	letters := letterPool(pool)
	opts := fmt.Sprintf(`
    "options": {"labels": ["%s"], "map_description": "<drawable layout naming where each letter sits>"},`,
		strings.Join(letters, `", "`))
	return envelope(in, groupSchema(in, opts, ""))
}

func matchingListeningSchema(in *PromptInput, pool int) string {
	opts := fmt.Sprintf(`
    "options": {"matching_options": [%s]},`, placeholderList("<option text>", pool))
	return envelope(in, groupSchema(in, opts, ""))
}

func writingTaskSchema(withVisual bool) string {
	if withVisual {
		return `{
  "topic": "<short topic label>",
  "task": {
    "instruction": "<the full Task 1 instruction shown to the candidate>",
    "visual_description": "<precise drawable description with concrete data values>",
    "min_words": 150
  }
}`
	}
	return `{
  "topic": "<short topic label>",
  "task": {
    "instruction": "<the full Task 2 essay question shown to the candidate>",
    "min_words": 250
  }
}`
}

func speakingSchema(parts []int) string {
	var blocks []string
	for _, p := range parts {
		switch p {
		case 2:
			blocks = append(blocks, `    {"part": 2, "instruction": "<what the candidate must do>", "cue_card": {"topic": "Describe ...", "bullets": ["You should say: ...", "...", "...", "..."]}, "prep_seconds": 60, "talk_seconds": 120}`)
		default:
			blocks = append(blocks, fmt.Sprintf(`    {"part": %d, "instruction": "<what the candidate must do>", "questions": ["<question>", "..."]}`, p))
		}
	}
	return fmt.Sprintf(`{
  "topic": "<short topic label>",
  "parts": [
%s
  ]
}`, strings.Join(blocks, ",\n"))
}

func placeholderList(item string, n int) string {
	return fmt.Sprintf(`"%s", "... (%d entries total)"`, item, n)
}

func visualLabel(v string) string {
	switch v {
	case models.VisualBarChart:
		return "bar chart"
	case models.VisualLineGraph:
		return "line graph"
	case models.VisualPieChart:
		return "pie chart"
	case models.VisualTable:
		return "data table"
	case models.VisualProcess:
		return "process diagram"
	case models.VisualMap:
		return "map comparison"
	default:
		return strings.ToLower(strings.ReplaceAll(v, "_", " "))
	}
}

func numberWord(n int) string {
	words := []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	if n >= 0 && n < len(words) {
		return words[n]
	}
	return fmt.Sprintf("%d", n)
}

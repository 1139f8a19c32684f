package models

// Reading question types.
const (
	TrueFalseNotGiven       = "TRUE_FALSE_NOT_GIVEN"
	YesNoNotGiven           = "YES_NO_NOT_GIVEN"
	MultipleChoiceSingle    = "MULTIPLE_CHOICE_SINGLE"
	MultipleChoiceMultiple  = "MULTIPLE_CHOICE_MULTIPLE"
	MatchingHeadings        = "MATCHING_HEADINGS"
	MatchingInformation     = "MATCHING_INFORMATION"
	MatchingFeatures        = "MATCHING_FEATURES"
	MatchingSentenceEndings = "MATCHING_SENTENCE_ENDINGS"
	SentenceCompletion      = "SENTENCE_COMPLETION"
	SummaryCompletion       = "SUMMARY_COMPLETION"
	NoteCompletion          = "NOTE_COMPLETION"
	TableCompletion         = "TABLE_COMPLETION"
	FlowchartCompletion     = "FLOWCHART_COMPLETION"
	DiagramLabeling         = "DIAGRAM_LABELING"
	ShortAnswer             = "SHORT_ANSWER"
)

// Listening-only question types (listening also reuses several reading types).
const (
	FormCompletion = "FORM_COMPLETION"
	MapLabeling    = "MAP_LABELING"
	Matching       = "MATCHING"
)

// Writing task selectors.
const (
	WritingTask1    = "TASK1"
	WritingTask2    = "TASK2"
	WritingFullTest = "FULL"
)

// Writing Task 1 visual types.
const (
	VisualBarChart  = "BAR_CHART"
	VisualLineGraph = "LINE_GRAPH"
	VisualPieChart  = "PIE_CHART"
	VisualTable     = "TABLE"
	VisualProcess   = "PROCESS_DIAGRAM"
	VisualMap       = "MAP"
	VisualRandom    = "RANDOM"
)

// SpeakingFullTest selects all three speaking parts.
const SpeakingFullTest = "FULL_TEST"

// readingTypes is the set of question types the reading catalog covers.
var readingTypes = map[string]bool{
	TrueFalseNotGiven:       true,
	YesNoNotGiven:           true,
	MultipleChoiceSingle:    true,
	MultipleChoiceMultiple:  true,
	MatchingHeadings:        true,
	MatchingInformation:     true,
	MatchingFeatures:        true,
	MatchingSentenceEndings: true,
	SentenceCompletion:      true,
	SummaryCompletion:       true,
	NoteCompletion:          true,
	TableCompletion:         true,
	FlowchartCompletion:     true,
	DiagramLabeling:         true,
	ShortAnswer:             true,
}

// listeningTypes is the set of question types the listening catalog covers.
var listeningTypes = map[string]bool{
	FormCompletion:         true,
	NoteCompletion:         true,
	TableCompletion:        true,
	SentenceCompletion:     true,
	MultipleChoiceSingle:   true,
	MultipleChoiceMultiple: true,
	Matching:               true,
	MapLabeling:            true,
	FlowchartCompletion:    true,
	ShortAnswer:            true,
}

// writingVisuals is the set of concrete Task 1 visual types (RANDOM resolves
// to one of these before prompt building).
var writingVisuals = []string{
	VisualBarChart, VisualLineGraph, VisualPieChart,
	VisualTable, VisualProcess, VisualMap,
}

// IsValidQuestionType reports whether the type is supported for the module.
func IsValidQuestionType(module Module, questionType string) bool {
	switch module {
	case ModuleReading:
		return readingTypes[questionType]
	case ModuleListening:
		return listeningTypes[questionType]
	case ModuleWriting:
		return questionType == WritingTask1 || questionType == WritingTask2 || questionType == WritingFullTest
	case ModuleSpeaking:
		return questionType == "PART1" || questionType == "PART2" || questionType == "PART3" || questionType == SpeakingFullTest
	}
	return false
}

// ConcreteVisualTypes returns the resolvable Task 1 visuals.
func ConcreteVisualTypes() []string {
	out := make([]string, len(writingVisuals))
	copy(out, writingVisuals)
	return out
}

// ReadingQuestionTypes lists the supported reading types.
func ReadingQuestionTypes() []string {
	return keys(readingTypes)
}

// ListeningQuestionTypes lists the supported listening types.
func ListeningQuestionTypes() []string {
	return keys(listeningTypes)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ImageBearingType reports whether the question type requires a generated
// auxiliary image (maps, flowcharts, diagrams). Image failure is non-fatal.
func ImageBearingType(questionType string) bool {
	switch questionType {
	case MapLabeling, FlowchartCompletion, DiagramLabeling:
		return true
	}
	return false
}

// OptionBearingType reports whether the type renders a lettered option set
// that correct answers index into.
func OptionBearingType(questionType string) bool {
	switch questionType {
	case MultipleChoiceSingle, MultipleChoiceMultiple,
		MatchingHeadings, MatchingInformation, MatchingFeatures,
		MatchingSentenceEndings, Matching, MapLabeling, DiagramLabeling:
		return true
	}
	return false
}

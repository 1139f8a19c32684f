package models

// ReadingConfig carries reading-specific generation options.
type ReadingConfig struct {
	// FillBlankStyle selects the fill-in-blank display variant: PLAIN,
	// PARAGRAPH, BULLETS, GROUPED, or NOTES.
	FillBlankStyle string `json:"fillBlankStyle,omitempty"`
	ParagraphCount int    `json:"paragraphCount,omitempty"`
}

// ListeningConfig carries listening-specific generation options.
type ListeningConfig struct {
	// Scenario is a free-form setting hint (e.g. "booking a hotel room").
	Scenario string `json:"scenario,omitempty"`
	// Speakers is 1 for a monologue, 2 for a dialogue.
	Speakers int `json:"speakers,omitempty"`
	// SpellingFocus enables the dual-speaker sub-variant where one answer
	// is spelled out letter-by-letter in the audio.
	SpellingFocus bool                `json:"spellingFocus,omitempty"`
	Speaker1      *SpeakerVoiceConfig `json:"speaker1,omitempty"`
	Speaker2      *SpeakerVoiceConfig `json:"speaker2,omitempty"`
}

// WritingConfig carries writing-specific generation options.
type WritingConfig struct {
	// Task selects TASK1, TASK2, or FULL.
	Task string `json:"task,omitempty"`
	// VisualType is a Task 1 visual kind, or RANDOM.
	VisualType string `json:"visualType,omitempty"`
}

// GenerateTestRequest is the generation entry-point body.
type GenerateTestRequest struct {
	Module          Module     `json:"module"`
	QuestionType    string     `json:"questionType"`
	Difficulty      Difficulty `json:"difficulty"`
	TopicPreference string     `json:"topicPreference,omitempty"`
	QuestionCount   int        `json:"questionCount"`
	TimeMinutes     int        `json:"timeMinutes"`

	ReadingConfig   *ReadingConfig   `json:"readingConfig,omitempty"`
	ListeningConfig *ListeningConfig `json:"listeningConfig,omitempty"`
	WritingConfig   *WritingConfig   `json:"writingConfig,omitempty"`
}

// SpeakerConfig resolves the TTS speaker setup for this request, defaulting
// to a single unnamed speaker when the config is absent.
func (r *GenerateTestRequest) SpeakerConfig() SpeakerConfigInput {
	if r.ListeningConfig == nil {
		return SpeakerConfigInput{Speakers: 1}
	}
	speakers := r.ListeningConfig.Speakers
	if speakers != 2 {
		speakers = 1
	}
	return SpeakerConfigInput{
		Speakers: speakers,
		Speaker1: r.ListeningConfig.Speaker1,
		Speaker2: r.ListeningConfig.Speaker2,
	}
}

// ErrorResponse is the failure body returned by every endpoint.
type ErrorResponse struct {
	Error      string `json:"error"`
	ErrorType  string `json:"errorType,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

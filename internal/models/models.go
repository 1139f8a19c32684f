// Package models defines data structures used throughout the IELTS preparation backend.
package models

import (
	"database/sql"
	"time"
)

// Module identifies one of the four exam skills.
type Module string

// Supported exam modules.
const (
	ModuleReading   Module = "reading"
	ModuleListening Module = "listening"
	ModuleWriting   Module = "writing"
	ModuleSpeaking  Module = "speaking"
)

// IsValid reports whether the module is one of the four exam skills.
func (m Module) IsValid() bool {
	switch m {
	case ModuleReading, ModuleListening, ModuleWriting, ModuleSpeaking:
		return true
	}
	return false
}

// Difficulty is the requested target band.
type Difficulty string

// Supported difficulty bands.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// IsValid reports whether the difficulty is a known band.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Question is one gradable unit. QuestionNumber is unique within a test and
// is the join key to a submitted answer. For multi-answer questions
// CorrectAnswer is a comma-joined list of letters.
type Question struct {
	QuestionNumber int      `json:"question_number"`
	QuestionText   string   `json:"question_text"`
	CorrectAnswer  string   `json:"correct_answer"`
	Explanation    string   `json:"explanation,omitempty"`
	Options        []string `json:"options,omitempty"`
	MaxAnswers     int      `json:"max_answers,omitempty"`
}

// QuestionGroup is one instructional block covering a contiguous range of
// question numbers. Options carries the type-specific side payload (heading
// list, table skeleton, map labels, drag pool, word bank); its shape depends
// on QuestionType and the frontend renders it generically.
type QuestionGroup struct {
	Instruction   string                 `json:"instruction"`
	QuestionType  string                 `json:"question_type"`
	StartQuestion int                    `json:"start_question"`
	EndQuestion   int                    `json:"end_question"`
	Options       map[string]interface{} `json:"options,omitempty"`
	ImageURL      string                 `json:"image_url,omitempty"`
	Questions     []Question             `json:"questions"`
}

// SlotCount returns the number of answer slots the UI renders for this group.
func (g *QuestionGroup) SlotCount() int {
	return g.EndQuestion - g.StartQuestion + 1
}

// Passage is a reading passage.
type Passage struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// WritingTaskPrompt is one writing task (Task 1 or Task 2).
type WritingTaskPrompt struct {
	TaskNumber  int    `json:"task_number"`
	Instruction string `json:"instruction"`
	VisualType  string `json:"visual_type,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	// ImageFallback describes the visual in text when image generation or
	// upload failed; the UI renders it in place of the chart.
	ImageFallback string `json:"image_fallback,omitempty"`
	MinWords      int    `json:"min_words"`
	TimeMinutes   int    `json:"time_minutes"`
}

// WritingTask is the writing-module payload: Task 1, Task 2, or both.
type WritingTask struct {
	Task1 *WritingTaskPrompt `json:"task1,omitempty"`
	Task2 *WritingTaskPrompt `json:"task2,omitempty"`
}

// CueCard is the part-2 speaking topic card.
type CueCard struct {
	Topic   string   `json:"topic"`
	Bullets []string `json:"bullets"`
}

// SpeakingPart is one of the three speaking sections.
type SpeakingPart struct {
	Part         int      `json:"part"`
	Instruction  string   `json:"instruction"`
	Questions    []string `json:"questions,omitempty"`
	CueCard      *CueCard `json:"cue_card,omitempty"`
	PrepSeconds  int      `json:"prep_seconds,omitempty"`
	SpeakMinutes int      `json:"speak_minutes"`
}

// GeneratedTest is the root artifact of one generation request. Exactly one
// of Passage, Transcript, WritingTask, SpeakingParts is populated, matching
// Module. Immutable once created.
type GeneratedTest struct {
	ID           string     `json:"testId"`
	Module       Module     `json:"module"`
	QuestionType string     `json:"questionType,omitempty"`
	Difficulty   Difficulty `json:"difficulty"`
	Topic        string     `json:"topic"`
	TimeMinutes  int        `json:"timeMinutes"`
	GeneratedAt  time.Time  `json:"generatedAt"`

	Passage        *Passage        `json:"passage,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	AudioBase64    string          `json:"audioBase64,omitempty"`
	SampleRate     int             `json:"sampleRate,omitempty"`
	QuestionGroups []QuestionGroup `json:"questionGroups,omitempty"`
	WritingTask    *WritingTask    `json:"writingTask,omitempty"`
	SpeakingParts  []SpeakingPart  `json:"speakingParts,omitempty"`
}

// SpeakerVoiceConfig is one dialogue speaker's requested voice.
type SpeakerVoiceConfig struct {
	Gender    string `json:"gender"`
	Accent    string `json:"accent"`
	VoiceName string `json:"voiceName"`
}

// SpeakerConfigInput selects one or two speakers for TTS. Not persisted
// beyond the single generation call.
type SpeakerConfigInput struct {
	Speakers int                 `json:"speakers"`
	Speaker1 *SpeakerVoiceConfig `json:"speaker1,omitempty"`
	Speaker2 *SpeakerVoiceConfig `json:"speaker2,omitempty"`
}

// TokenUsage is the token accounting for one model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another call's usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// User represents a user in the system. Authentication itself is handled
// upstream; the backend only needs identity and the stored provider key.
type User struct {
	ID        int            `json:"id"`
	Username  string         `json:"username"`
	Email     sql.NullString `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AuthAPIKey is a bcrypt-hashed service key used for header authentication.
type AuthAPIKey struct {
	ID         int          `json:"id"`
	UserID     int          `json:"user_id"`
	KeyName    string       `json:"key_name"`
	KeyHash    string       `json:"-"`
	KeyPrefix  string       `json:"key_prefix"`
	LastUsedAt sql.NullTime `json:"last_used_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DailyUsage is the per-user per-day token counter read by the UI for
// advisory quota warnings. Ceiling is the configured daily allowance, not
// a hard limit.
type DailyUsage struct {
	UserID           int       `json:"user_id"`
	UsageDate        time.Time `json:"usage_date"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Ceiling          int       `json:"ceiling"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TestRecord is the persisted form of a GeneratedTest.
type TestRecord struct {
	ID           string    `json:"id"`
	UserID       int       `json:"user_id"`
	Module       Module    `json:"module"`
	QuestionType string    `json:"question_type"`
	Topic        string    `json:"topic"`
	Payload      []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

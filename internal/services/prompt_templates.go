// Package services provides the generation pipeline: prompt catalog, model
// gateway, response extraction, and content assembly.
package services

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var promptTemplatesFS embed.FS

// Template names as constants
const (
	ReadingPromptTemplate   = "reading_prompt.tmpl"
	ListeningPromptTemplate = "listening_prompt.tmpl"
	WritingTask1Template    = "writing_task1.tmpl"
	WritingTask2Template    = "writing_task2.tmpl"
	SpeakingPromptTemplate  = "speaking_prompt.tmpl"
	ImagePromptTemplate     = "image_prompt.tmpl"
)

// PromptTemplateData holds data for rendering generation prompt templates.
// Render strategies share one struct; each template reads the fields it
// needs.
type PromptTemplateData struct {
	// Common fields
	Difficulty    string
	Topic         string
	QuestionCount int
	StartQuestion int
	EndQuestion   int
	TimeMinutes   int

	// Per-type contract, filled from the catalog table
	TypeInstruction string
	SchemaExample   string
	Rules           []string

	// Reading fields
	PassageWords   int
	ParagraphCount int

	// Listening fields
	TranscriptWords int
	Speakers        int
	Scenario        string
	SpellingFocus   bool

	// Writing fields
	VisualType string
	MinWords   int

	// Speaking fields
	Parts []int

	// Image generation fields
	Subject     string
	Style       string
	Description string
}

// PromptTemplateManager renders the embedded prompt templates.
type PromptTemplateManager struct {
	templates *template.Template
}

// NewPromptTemplateManager parses the embedded template set.
func NewPromptTemplateManager() (result0 *PromptTemplateManager, err error) {
	templates, err := template.New("").ParseFS(promptTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	return &PromptTemplateManager{
		templates: templates,
	}, nil
}

// RenderTemplate renders a template with the given data.
func (tm *PromptTemplateManager) RenderTemplate(templateName string, data PromptTemplateData) (result0 string, err error) {
	var buf strings.Builder
	err = tm.templates.ExecuteTemplate(&buf, templateName, data)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

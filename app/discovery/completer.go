package discovery

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldStrings FieldType = "strings"
)

// Field describes one property of the JSON object a completion must return.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Enum        []string
	Required    bool
}

// Schema is a provider-neutral description of a flat JSON response object.
type Schema struct {
	Fields []Field
}

type Request struct {
	Model           string
	System          string
	Messages        []Message
	Schema          *Schema
	MaxOutputTokens int
}

// Completion is the raw provider answer. Text must hold a JSON object.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Completer is any LLM provider able to return JSON for a request.
// Implementations must not retry internally.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

var fullSchema = &Schema{Fields: []Field{
	{Name: "isMatch", Type: FieldBoolean, Description: "Whether the content matches the monitoring intent.", Required: true},
	{Name: "relevanceScore", Type: FieldNumber, Description: "Relevance between 0 and 1.", Required: true},
	{Name: "matchType", Type: FieldString, Description: "Kind of evidence.", Enum: []string{"direct", "semantic", "contextual", "none"}, Required: true},
	{Name: "reasoning", Type: FieldString, Description: "One or two sentences explaining the verdict.", Required: true},
	{Name: "signals", Type: FieldStrings, Description: "Phrases in the content that support the verdict."},
	{Name: "suggestedKeywords", Type: FieldStrings, Description: "Keywords that would have caught this content literally."},
}}

var quickSchema = &Schema{Fields: []Field{
	{Name: "isMatch", Type: FieldBoolean, Description: "Whether the content could match the monitoring intent.", Required: true},
	{Name: "confidence", Type: FieldNumber, Description: "Confidence between 0 and 1.", Required: true},
}}

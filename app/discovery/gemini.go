package discovery

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiCompleter sends requests to the Gemini API with a JSON response schema.
type GeminiCompleter struct {
	client *genai.Client
}

func NewGeminiCompleter(ctx context.Context, apiKey string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiCompleter{client: client}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Schema != nil {
		config.ResponseSchema = geminiSchema(req.Schema)
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini API call failed: %w", err)
	}

	completion := Completion{Text: resp.Text(), Model: req.Model}
	if resp.ModelVersion != "" {
		completion.Model = resp.ModelVersion
	}
	if usage := resp.UsageMetadata; usage != nil {
		completion.PromptTokens = int(usage.PromptTokenCount)
		completion.CompletionTokens = int(usage.CandidatesTokenCount)
	}

	return completion, nil
}

func geminiSchema(s *Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}

	for _, f := range s.Fields {
		prop := &genai.Schema{Description: f.Description, Enum: f.Enum}
		switch f.Type {
		case FieldNumber:
			prop.Type = genai.TypeNumber
		case FieldBoolean:
			prop.Type = genai.TypeBoolean
		case FieldStrings:
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		default:
			prop.Type = genai.TypeString
		}
		out.Properties[f.Name] = prop
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}

	return out
}

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
)

// OpenAIProvider implements Provider using the OpenAI chat completions API.
// A custom base URL points it at any OpenAI-compatible server (Ollama,
// LM Studio, OpenRouter).
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	label   string
	baseURL string
}

// NewOpenAIProvider creates a provider for the hosted OpenAI API. An empty
// apiKey falls back to the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key (set api_key in config or OPENAI_API_KEY)")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client, model: model, label: "OpenAI"}, nil
}

// NewOpenAICompatProvider creates a provider for an OpenAI-compatible server
// at baseURL. Local servers usually accept any non-empty API key.
func NewOpenAICompatProvider(label, baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base_url is required", strings.ToLower(label))
	}
	if apiKey == "" {
		apiKey = "unused"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAIProvider{client: &client, model: model, label: label, baseURL: baseURL}, nil
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.label, p.model)
}

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(chooseModel(req.Model, p.model)),
			Messages: buildOpenAIMessages(req.Messages),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if len(req.Tools) > 0 {
			params.Tools = buildOpenAITools(req.Tools)
			if !req.ParallelToolCalls {
				params.ParallelToolCalls = openai.Bool(false)
			}
		}
		if req.MaxOutputTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(float64(req.Temperature))
		}

		if req.Debug {
			fmt.Fprintln(os.Stderr, "=== DEBUG: OpenAI Stream Request ===")
			fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
			fmt.Fprintf(os.Stderr, "Messages: %d\n", len(params.Messages))
			fmt.Fprintf(os.Stderr, "Tools: %d\n", len(req.Tools))
			fmt.Fprintln(os.Stderr, "===================================")
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				events <- Event{Type: EventTextDelta, Text: chunk.Choices[0].Delta.Content}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}

		// Tool calls arrive as argument fragments; read the assembled calls
		// from the accumulator once the stream is done.
		if len(acc.Choices) > 0 {
			for _, call := range acc.Choices[0].Message.ToolCalls {
				toolCall := ToolCall{
					ID:        call.ID,
					Name:      call.Function.Name,
					Arguments: []byte(call.Function.Arguments),
				}
				events <- Event{Type: EventToolCall, Tool: &toolCall}
			}
		}

		if acc.Usage.CompletionTokens > 0 || acc.Usage.PromptTokens > 0 {
			events <- Event{Type: EventUsage, Use: &Usage{
				InputTokens:  int(acc.Usage.PromptTokens),
				OutputTokens: int(acc.Usage.CompletionTokens),
			}}
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case RoleUser:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case RoleAssistant:
			out = append(out, buildOpenAIAssistantMessage(msg))
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
				}
			}
		}
	}
	return out
}

func buildOpenAIAssistantMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}

	if text := collectTextParts(msg.Parts); text != "" {
		assistant.Content.OfString = param.NewOpt(text)
	}

	for _, part := range msg.Parts {
		if part.Type == PartToolCall && part.ToolCall != nil {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: part.ToolCall.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      part.ToolCall.Name,
						Arguments: string(part.ToolCall.Arguments),
					},
				},
			})
		}
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": spec.Schema["properties"],
		}
		if required := schemaRequired(spec.Schema); len(required) > 0 {
			params["required"] = required
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  params,
		}))
	}
	return tools
}

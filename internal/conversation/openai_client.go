package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultOpenAIModel = "gpt-3.5-turbo"

// chatCompletions is the slice of the OpenAI SDK this client needs.
type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAILLMClient implements LLMClient using the OpenAI chat completions API.
type OpenAILLMClient struct {
	chat    chatCompletions
	modelID string
	tracer  trace.Tracer
}

// NewOpenAILLMClient creates a client for apiKey. Extra request options (base
// URL, HTTP client, retries) are passed through to the SDK.
func NewOpenAILLMClient(apiKey, modelID string, opts ...option.RequestOption) (*OpenAILLMClient, error) {
	if !strings.HasPrefix(strings.TrimSpace(apiKey), "sk-") {
		return nil, errors.New("conversation: openai api key missing or malformed")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultOpenAIModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return newOpenAILLMClient(&client.Chat.Completions, modelID), nil
}

func newOpenAILLMClient(chat chatCompletions, modelID string) *OpenAILLMClient {
	return &OpenAILLMClient{
		chat:    chat,
		modelID: modelID,
		tracer:  otel.Tracer("multiplay.internal.conversation.openai"),
	}
}

// Complete sends the system prompt and transcript to OpenAI.
func (c *OpenAILLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.modelID
	}
	ctx, span := c.tracer.Start(ctx, "openai.complete", trace.WithAttributes(attribute.String("llm.model", model)))
	defer span.End()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		if strings.TrimSpace(sys) != "" {
			messages = append(messages, openai.SystemMessage(sys))
		}
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case ChatRoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case ChatRoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature >= 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("conversation: openai returned no choices")
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return LLMResponse{}, errors.New("conversation: openai returned empty content")
	}
	span.SetAttributes(attribute.Int64("llm.total_tokens", resp.Usage.TotalTokens))
	return LLMResponse{
		Text:       text,
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

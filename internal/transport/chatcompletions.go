package transport

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/turnkit/agentcore/internal/rollout"
)

// ChatCompletionsClient implements spec.md §4.H "Chat Completions
// (legacy)": a streaming POST to the chat API via the teacher's direct
// dependency github.com/sashabaranov/go-openai. This wire does not support
// Request.OutputSchema.
type ChatCompletionsClient struct {
	client *openai.Client
}

// NewChatCompletionsClient wraps an existing go-openai client.
func NewChatCompletionsClient(client *openai.Client) *ChatCompletionsClient {
	return &ChatCompletionsClient{client: client}
}

// Stream sends req over the Chat Completions wire, returning
// ErrUnsupportedOperation immediately if req.OutputSchema is set.
func (c *ChatCompletionsClient) Stream(ctx context.Context, req Request) (<-chan ResponseEvent, <-chan error) {
	events := make(chan ResponseEvent, 64)
	errs := make(chan error, 1)

	if len(req.OutputSchema) > 0 {
		go func() {
			errs <- ErrUnsupportedOperation
			close(events)
			close(errs)
		}()
		return events, errs
	}

	go func() {
		defer close(events)
		defer close(errs)

		messages, err := toChatMessages(req)
		if err != nil {
			errs <- err
			return
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			errs <- fmt.Errorf("transport: chat completions stream: %w", err)
			return
		}
		defer stream.Close()

		events <- ResponseEvent{Kind: EventCreated}
		var responseID string
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				errs <- fmt.Errorf("transport: chat completions recv: %w", err)
				return
			}
			responseID = chunk.ID
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					events <- ResponseEvent{Kind: EventOutputTextDelta, Text: choice.Delta.Content}
				}
			}
		}
		events <- ResponseEvent{Kind: EventCompleted, ResponseID: responseID}
	}()

	return events, errs
}

func toChatMessages(req Request) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Input)+1)
	if req.Instructions != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Instructions})
	}
	for _, item := range req.Input {
		role, err := chatRole(item)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: item.Content})
	}
	return out, nil
}

func chatRole(item rollout.ResponseItem) (string, error) {
	switch item.Role {
	case "user", "developer":
		return openai.ChatMessageRoleUser, nil
	case "assistant":
		return openai.ChatMessageRoleAssistant, nil
	case "system":
		return openai.ChatMessageRoleSystem, nil
	case "":
		return openai.ChatMessageRoleUser, nil
	default:
		return "", fmt.Errorf("transport: unknown response-item role %q", item.Role)
	}
}

package api

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyConversation is returned when there is no user turn to answer.
var ErrEmptyConversation = errors.New("conversation is empty")

// Ask sends the conversation so far and returns the assistant reply.
func (c *Client) Ask(ctx context.Context, messages []ChatMessage) (string, error) {
	if len(messages) == 0 || strings.TrimSpace(messages[len(messages)-1].Content) == "" {
		return "", ErrEmptyConversation
	}

	var resp ChatbotResponse
	if err := c.post(ctx, "/api/chat", chatbotRequest{Messages: messages}, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

type Thread struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	AgentID   string `json:"agent_id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (c *Client) CreateThread(ctx context.Context, agentID, title string) (Thread, error) {
	var t Thread
	body := map[string]any{"agent_id": agentID}
	if title != "" {
		body["title"] = title
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/thread", nil, body, &t); err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

func (c *Client) ListThreads(ctx context.Context, agentID string) ([]Thread, error) {
	var threads []Thread
	q := url.Values{"agent_id": {agentID}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/threads", q, nil, &threads); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/chat/thread/"+url.PathEscape(threadID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// Ratings accepted by SubmitFeedback
const (
	RatingLike    = "like"
	RatingDislike = "dislike"
)

func feedbackPath(messageID chat.MessageID) string {
	return "/api/chat/message/" + url.PathEscape(string(messageID)) + "/feedback"
}

// SubmitFeedback rates a persisted message. The backend accepts one rating
// per user and message.
func (c *Client) SubmitFeedback(ctx context.Context, messageID chat.MessageID, rating, reason string) (chat.Feedback, error) {
	if rating != RatingLike && rating != RatingDislike {
		return chat.Feedback{}, fmt.Errorf("submit feedback: rating must be %q or %q, got %q", RatingLike, RatingDislike, rating)
	}

	body := map[string]any{"rating": rating}
	if reason != "" {
		body["reason"] = reason
	}
	var fb chat.Feedback
	if err := c.doJSON(ctx, http.MethodPost, feedbackPath(messageID), nil, body, &fb); err != nil {
		return chat.Feedback{}, fmt.Errorf("submit feedback: %w", err)
	}
	return fb, nil
}

// GetFeedback returns the caller's rating of a message, if any
func (c *Client) GetFeedback(ctx context.Context, messageID chat.MessageID) (*chat.Feedback, error) {
	var out struct {
		HasFeedback bool           `json:"has_feedback"`
		Feedback    *chat.Feedback `json:"feedback"`
	}
	if err := c.doJSON(ctx, http.MethodGet, feedbackPath(messageID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	if !out.HasFeedback {
		return nil, nil
	}
	return out.Feedback, nil
}

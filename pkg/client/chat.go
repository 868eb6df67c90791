package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// SendRequest is one chat turn sent to an agent
type SendRequest struct {
	Query        string
	ThreadID     string
	RequestID    string
	ImageContent string
	// Config is merged into the request's config object next to thread_id
	Config map[string]any
}

type chatBody struct {
	Query        string         `json:"query"`
	Config       map[string]any `json:"config"`
	Meta         map[string]any `json:"meta"`
	ImageContent string         `json:"image_content,omitempty"`
}

// body builds the wire payload, assigning a request id when none is set
func (r *SendRequest) body() chatBody {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}

	cfg := make(map[string]any, len(r.Config)+1)
	for k, v := range r.Config {
		cfg[k] = v
	}
	if r.ThreadID != "" {
		cfg["thread_id"] = r.ThreadID
	}

	return chatBody{
		Query:        r.Query,
		Config:       cfg,
		Meta:         map[string]any{"request_id": r.RequestID},
		ImageContent: r.ImageContent,
	}
}

func agentPath(agentID string, suffix ...string) string {
	p := "/api/chat/agent/" + url.PathEscape(agentID)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// SendMessage starts a chat turn and returns the NDJSON response body
func (c *Client) SendMessage(ctx context.Context, agentID string, req SendRequest) (io.ReadCloser, error) {
	body, err := c.doStream(ctx, agentPath(agentID), req.body())
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return body, nil
}

// Resume answers a pending approval and returns the continued stream
func (c *Client) Resume(ctx context.Context, agentID, threadID string, approved bool) (io.ReadCloser, error) {
	payload := map[string]any{"thread_id": threadID, "approved": approved}
	body, err := c.doStream(ctx, agentPath(agentID, "resume"), payload)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	return body, nil
}

// History returns the persisted messages of a thread in server order
func (c *Client) History(ctx context.Context, agentID, threadID string) ([]chat.Message, error) {
	var out struct {
		History []chat.Message `json:"history"`
	}
	q := url.Values{"thread_id": {threadID}}
	if err := c.doJSON(ctx, http.MethodGet, agentPath(agentID, "history"), q, nil, &out); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out.History, nil
}

// AgentState returns the agent's latest todos and files for a thread
func (c *Client) AgentState(ctx context.Context, agentID, threadID string) (stream.AgentState, error) {
	var out struct {
		AgentState *stream.AgentState `json:"agent_state"`
	}
	q := url.Values{"thread_id": {threadID}}
	if err := c.doJSON(ctx, http.MethodGet, agentPath(agentID, "state"), q, nil, &out); err != nil {
		return stream.AgentState{}, fmt.Errorf("load agent state: %w", err)
	}
	if out.AgentState == nil {
		return stream.AgentState{}, nil
	}
	return *out.AgentState, nil
}

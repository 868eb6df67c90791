package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

// DefaultEncoding works reasonably for most current chat models
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in chat text. Without an encoder it estimates.
type Counter struct {
	mu      sync.RWMutex
	encoder *tiktoken.Tiktoken
}

// NewCounter loads the named tiktoken encoding, falling back to
// DefaultEncoding. Loading may fetch the encoding over the network.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil && encoding != DefaultEncoding {
		encoder, err = tiktoken.GetEncoding(DefaultEncoding)
	}
	if err != nil {
		return nil, err
	}
	return &Counter{encoder: encoder}, nil
}

// NewEstimator returns a Counter that only estimates
func NewEstimator() *Counter {
	return &Counter{}
}

// CountTokens counts the tokens in text
func (c *Counter) CountTokens(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.encoder == nil {
		return estimateTokens(text)
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// CountMessage counts a message's text, reasoning and tool arguments
func (c *Counter) CountMessage(msg chat.Message) int {
	n := c.CountTokens(msg.Text()) + c.CountTokens(msg.Reasoning())
	for _, tc := range msg.ToolCalls {
		n += c.CountTokens(tc.ToolName()) + c.CountTokens(tc.Arguments())
	}
	return n
}

// Usage is the token count of one turn
type Usage struct {
	Sent     int
	Received int
}

func (u Usage) Total() int {
	return u.Sent + u.Received
}

// CountConversation splits a turn into the question and everything the
// agent produced, tool results included
func (c *Counter) CountConversation(conv chat.Conversation) Usage {
	var u Usage
	for _, msg := range conv.Messages {
		if msg.IsHuman() {
			u.Sent += c.CountMessage(msg)
			continue
		}
		u.Received += c.CountMessage(msg)
		for _, tc := range msg.ToolCalls {
			if tc.ToolCallResult != nil {
				u.Received += c.CountTokens(tc.ToolCallResult.Text())
			}
		}
	}
	return u
}

// estimateTokens takes the larger of the word count and a quarter of the
// byte length
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text) / 4
	if words > chars {
		return words
	}
	return chars
}

package chat

import (
	"github.com/tmc/langchaingo/llms"
)

// ToMessageContent converts turns into langchaingo message content, so a
// fetched thread can be replayed against any llms.Model. Tool calls become
// llms.ToolCall parts; each attached result follows as a tool message.
func ToMessageContent(convs []Conversation) []llms.MessageContent {
	var out []llms.MessageContent
	for _, conv := range convs {
		for _, msg := range conv.Messages {
			out = append(out, messageContent(msg)...)
		}
	}
	return out
}

func messageContent(msg Message) []llms.MessageContent {
	switch {
	case msg.IsHuman():
		return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, msg.Text())}
	case msg.Type == TypeSystem:
		return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, msg.Text())}
	case msg.IsTool():
		return []llms.MessageContent{toolResponse(msg.ToolCallID, "", msg)}
	case !msg.IsAI():
		return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeGeneric, msg.Text())}
	}

	ai := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if text := msg.Text(); text != "" {
		ai.Parts = append(ai.Parts, llms.TextContent{Text: text})
	}

	var results []llms.MessageContent
	for _, tc := range msg.ToolCalls {
		ai.Parts = append(ai.Parts, llms.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.ToolName(),
				Arguments: tc.Arguments(),
			},
		})
		if tc.ToolCallResult != nil {
			results = append(results, toolResponse(tc.ID, tc.ToolName(), *tc.ToolCallResult))
		}
	}

	return append([]llms.MessageContent{ai}, results...)
}

func toolResponse(callID, name string, result Message) llms.MessageContent {
	if name == "" {
		name = result.Name
	}
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: callID,
			Name:       name,
			Content:    result.Text(),
		}},
	}
}

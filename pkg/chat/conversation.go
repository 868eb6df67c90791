package chat

type TurnStatus string

const (
	TurnLoading  TurnStatus = "loading"
	TurnFinished TurnStatus = "finished"
)

// Conversation is one turn: a human message and the AI messages answering it
type Conversation struct {
	Messages []Message `json:"messages"`
	Status   TurnStatus `json:"status"`
}

func NewConversation(human Message) Conversation {
	return Conversation{
		Messages: []Message{human},
		Status:   TurnLoading,
	}
}

func AddMessage(conv Conversation, msg Message) Conversation {
	messages := make([]Message, len(conv.Messages)+1)
	copy(messages, conv.Messages)
	messages[len(conv.Messages)] = msg

	return Conversation{
		Messages: messages,
		Status:   conv.Status,
	}
}

func GetMessageCount(conv Conversation) int {
	return len(conv.Messages)
}

func IsOpen(conv Conversation) bool {
	return conv.Status == TurnLoading
}

func GetHumanMessage(conv Conversation) (Message, bool) {
	if len(conv.Messages) == 0 || !conv.Messages[0].IsHuman() {
		return Message{}, false
	}
	return conv.Messages[0], true
}

func GetLastAIMessage(conv Conversation) (Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsAI() {
			return conv.Messages[i], true
		}
	}
	return Message{}, false
}

func GetToolCalls(conv Conversation) []ToolCall {
	var result []ToolCall
	for _, msg := range conv.Messages {
		result = append(result, msg.ToolCalls...)
	}
	return result
}

// closeTurn flags the last AI message and finishes the turn. A turn without
// any AI message stays open.
func closeTurn(conv *Conversation) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsAI() {
			conv.Messages[i].IsLast = true
			conv.Status = TurnFinished
			return
		}
	}
}

// Segment groups chronologically ordered history into turns. Tool messages
// are skipped since their results are embedded in AI tool calls. AI messages
// seen before the first human message belong to no turn and are dropped.
func Segment(history []Message) []Conversation {
	var convs []Conversation
	current := -1

	for _, msg := range history {
		switch {
		case msg.IsTool():
			continue
		case msg.IsHuman():
			if current >= 0 {
				closeTurn(&convs[current])
			}
			convs = append(convs, NewConversation(msg))
			current = len(convs) - 1
		case msg.IsAI() && current >= 0:
			convs[current].Messages = append(convs[current].Messages, msg)
		}
	}

	if current >= 0 {
		closeTurn(&convs[current])
	}
	return convs
}

// BuildConversations is the one place where tool results are reconciled with
// their calls: results are attached from any tool messages present, then the
// history is segmented into turns.
func BuildConversations(history []Message) []Conversation {
	return Segment(AttachToolResults(history))
}

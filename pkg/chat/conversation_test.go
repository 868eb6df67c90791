package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

func human(id string) chat.Message {
	m := chat.NewHumanMessage(id)
	m.ID = chat.MessageID(id)
	return m
}

func ai(id string) chat.Message {
	m := chat.NewAIMessage(id)
	m.ID = chat.MessageID(id)
	return m
}

func ids(conv chat.Conversation) []chat.MessageID {
	out := make([]chat.MessageID, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, m.ID)
	}
	return out
}

var _ = Describe("Segment", func() {
	It("should split history into turns and flag the last AI message", func() {
		convs := chat.Segment([]chat.Message{human("H1"), ai("A1"), ai("A2"), human("H2"), ai("A3")})

		Expect(convs).To(HaveLen(2))
		Expect(ids(convs[0])).To(Equal([]chat.MessageID{"H1", "A1", "A2"}))
		Expect(convs[0].Status).To(Equal(chat.TurnFinished))
		Expect(convs[0].Messages[1].IsLast).To(BeFalse())
		Expect(convs[0].Messages[2].IsLast).To(BeTrue())

		Expect(ids(convs[1])).To(Equal([]chat.MessageID{"H2", "A3"}))
		Expect(convs[1].Status).To(Equal(chat.TurnFinished))
		Expect(convs[1].Messages[1].IsLast).To(BeTrue())
	})

	It("should leave a trailing unanswered human message open", func() {
		convs := chat.Segment([]chat.Message{human("H1"), ai("A1"), ai("A2"), human("H2"), ai("A3"), human("H3")})

		Expect(convs).To(HaveLen(3))
		Expect(convs[2].Status).To(Equal(chat.TurnLoading))
		Expect(chat.IsOpen(convs[2])).To(BeTrue())
		Expect(ids(convs[2])).To(Equal([]chat.MessageID{"H3"}))
	})

	It("should keep at most one open turn", func() {
		convs := chat.Segment([]chat.Message{human("H1"), human("H2"), ai("A2")})

		open := 0
		for _, c := range convs {
			if chat.IsOpen(c) {
				open++
			}
		}
		Expect(convs).To(HaveLen(2))
		Expect(open).To(Equal(1))
		Expect(chat.IsOpen(convs[0])).To(BeTrue())
	})

	It("should skip tool messages and orphan AI messages", func() {
		convs := chat.Segment([]chat.Message{
			ai("A0"),
			human("H1"),
			chat.NewToolMessage("call", "r"),
			ai("A1"),
		})

		Expect(convs).To(HaveLen(1))
		Expect(ids(convs[0])).To(Equal([]chat.MessageID{"H1", "A1"}))
	})

	It("should return nothing for empty history", func() {
		Expect(chat.Segment(nil)).To(BeEmpty())
	})

	It("should not mutate the history slice", func() {
		history := []chat.Message{human("H1"), ai("A1")}
		chat.Segment(history)
		Expect(history[1].IsLast).To(BeFalse())
	})
})

var _ = Describe("BuildConversations", func() {
	It("should attach tool results before segmenting", func() {
		call := ai("A1")
		call.ToolCalls = []chat.ToolCall{{ID: "call_1", Function: chat.FunctionCall{Name: "search"}}}

		convs := chat.BuildConversations([]chat.Message{human("H1"), call, chat.NewToolMessage("call_1", "found"), ai("A2")})

		Expect(convs).To(HaveLen(1))
		Expect(ids(convs[0])).To(Equal([]chat.MessageID{"H1", "A1", "A2"}))
		tcs := chat.GetToolCalls(convs[0])
		Expect(tcs).To(HaveLen(1))
		Expect(tcs[0].ToolCallResult.Content).To(Equal("found"))
	})
})

var _ = Describe("Conversation helpers", func() {
	conv := chat.Conversation{Messages: []chat.Message{human("H1"), ai("A1"), ai("A2")}, Status: chat.TurnFinished}

	It("should find the human and last AI message", func() {
		h, ok := chat.GetHumanMessage(conv)
		Expect(ok).To(BeTrue())
		Expect(h.ID).To(Equal(chat.MessageID("H1")))

		last, ok := chat.GetLastAIMessage(conv)
		Expect(ok).To(BeTrue())
		Expect(last.ID).To(Equal(chat.MessageID("A2")))
	})

	It("should add messages without touching the original", func() {
		next := chat.AddMessage(conv, ai("A3"))
		Expect(chat.GetMessageCount(next)).To(Equal(4))
		Expect(chat.GetMessageCount(conv)).To(Equal(3))
		Expect(next.Status).To(Equal(chat.TurnFinished))
	})

	It("should report missing messages", func() {
		_, ok := chat.GetLastAIMessage(chat.NewConversation(human("H")))
		Expect(ok).To(BeFalse())
		_, ok = chat.GetHumanMessage(chat.Conversation{})
		Expect(ok).To(BeFalse())
	})
})

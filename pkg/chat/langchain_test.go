package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tmc/langchaingo/llms"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

var _ = Describe("ToMessageContent", func() {
	It("should map turns onto langchaingo roles and parts", func() {
		result := chat.NewToolMessage("call_1", "42")
		answer := chat.NewAIMessage("")
		answer.ToolCalls = []chat.ToolCall{{
			ID:             "call_1",
			Function:       chat.FunctionCall{Name: "calc", Arguments: `{"x":1}`},
			ToolCallResult: &result,
		}}

		convs := []chat.Conversation{{
			Messages: []chat.Message{chat.NewHumanMessage("what is it"), answer, chat.NewAIMessage("it is 42")},
			Status:   chat.TurnFinished,
		}}

		out := chat.ToMessageContent(convs)
		Expect(out).To(HaveLen(4))

		Expect(out[0].Role).To(Equal(llms.ChatMessageTypeHuman))
		Expect(out[0].Parts).To(ConsistOf(llms.TextContent{Text: "what is it"}))

		Expect(out[1].Role).To(Equal(llms.ChatMessageTypeAI))
		Expect(out[1].Parts).To(HaveLen(1))
		call, ok := out[1].Parts[0].(llms.ToolCall)
		Expect(ok).To(BeTrue())
		Expect(call.ID).To(Equal("call_1"))
		Expect(call.FunctionCall.Name).To(Equal("calc"))
		Expect(call.FunctionCall.Arguments).To(Equal(`{"x":1}`))

		Expect(out[2].Role).To(Equal(llms.ChatMessageTypeTool))
		resp, ok := out[2].Parts[0].(llms.ToolCallResponse)
		Expect(ok).To(BeTrue())
		Expect(resp.ToolCallID).To(Equal("call_1"))
		Expect(resp.Name).To(Equal("calc"))
		Expect(resp.Content).To(Equal("42"))

		Expect(out[3].Parts).To(ConsistOf(llms.TextContent{Text: "it is 42"}))
	})
})

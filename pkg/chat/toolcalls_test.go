package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

var _ = Describe("MergeToolCallChunks", func() {
	var msg chat.Message

	BeforeEach(func() {
		msg = chat.Message{Type: chat.TypeAI}
	})

	It("should do nothing for empty chunks", func() {
		chat.MergeToolCallChunks(&msg, nil)
		Expect(msg.ToolCalls).To(BeNil())
	})

	It("should fill identity fields first-write-wins", func() {
		chat.MergeToolCallChunks(&msg, []chat.ToolCallChunk{{Index: 0, Args: "{"}})
		chat.MergeToolCallChunks(&msg, []chat.ToolCallChunk{{Index: 0, ID: "t1", Name: "search", Args: "}"}})
		chat.MergeToolCallChunks(&msg, []chat.ToolCallChunk{{Index: 0, ID: "t2", Name: "other"}})

		Expect(msg.ToolCalls).To(HaveLen(1))
		Expect(msg.ToolCalls[0].ID).To(Equal("t1"))
		Expect(msg.ToolCalls[0].Function.Name).To(Equal("search"))
		Expect(msg.ToolCalls[0].Function.Arguments).To(Equal("{}"))
	})

	It("should keep first-seen index order", func() {
		chat.MergeToolCallChunks(&msg, []chat.ToolCallChunk{
			{Index: 2, ID: "c", Name: "third"},
			{Index: 0, ID: "a", Name: "first"},
		})
		chat.MergeToolCallChunks(&msg, []chat.ToolCallChunk{
			{Index: 1, ID: "b", Name: "second"},
			{Index: 2, Args: "{}"},
		})

		Expect(msg.ToolCalls).To(HaveLen(3))
		Expect(msg.ToolCalls[0].Index).To(Equal(2))
		Expect(msg.ToolCalls[0].Function.Arguments).To(Equal("{}"))
		Expect(msg.ToolCalls[1].Index).To(Equal(0))
		Expect(msg.ToolCalls[2].Index).To(Equal(1))
	})
})

var _ = Describe("AttachToolResults", func() {
	history := func() []chat.Message {
		return []chat.Message{
			chat.NewHumanMessage("find x"),
			{ID: "a1", Type: chat.TypeAI, ToolCalls: []chat.ToolCall{
				{ID: "call_1", Function: chat.FunctionCall{Name: "search"}},
				{ID: "call_2", Function: chat.FunctionCall{Name: "fetch"}},
			}},
			chat.NewToolMessage("call_1", "result one"),
			{ID: "call_2", Type: chat.TypeTool, Content: "result two"},
		}
	}

	It("should attach results keyed by tool_call_id or id", func() {
		out := chat.AttachToolResults(history())

		calls := out[1].ToolCalls
		Expect(calls[0].ToolCallResult).ToNot(BeNil())
		Expect(calls[0].ToolCallResult.Content).To(Equal("result one"))
		Expect(calls[1].ToolCallResult).ToNot(BeNil())
		Expect(calls[1].ToolCallResult.Content).To(Equal("result two"))
	})

	It("should leave unmatched calls without a result", func() {
		msgs := []chat.Message{{Type: chat.TypeAI, ToolCalls: []chat.ToolCall{{ID: "missing"}}}}
		out := chat.AttachToolResults(msgs)
		Expect(out[0].ToolCalls[0].ToolCallResult).To(BeNil())
	})

	It("should keep results the backend already embedded", func() {
		embedded := chat.NewToolMessage("call_9", "stored")
		msgs := []chat.Message{{Type: chat.TypeAI, ToolCalls: []chat.ToolCall{{ID: "call_9", ToolCallResult: &embedded}}}}
		out := chat.AttachToolResults(msgs)
		Expect(out[0].ToolCalls[0].ToolCallResult.Content).To(Equal("stored"))
	})

	It("should be pure and idempotent", func() {
		in := history()
		once := chat.AttachToolResults(in)
		twice := chat.AttachToolResults(once)

		Expect(in[1].ToolCalls[0].ToolCallResult).To(BeNil())
		Expect(twice).To(Equal(once))
	})

	It("should not depend on where tool messages appear", func() {
		in := history()
		reordered := []chat.Message{in[2], in[3], in[0], in[1]}

		out := chat.AttachToolResults(reordered)
		Expect(out[3].ToolCalls[0].ToolCallResult.Content).To(Equal("result one"))
		Expect(out[3].ToolCalls[1].ToolCallResult.Content).To(Equal("result two"))
	})
})

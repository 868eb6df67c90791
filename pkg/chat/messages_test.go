package chat_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

var _ = Describe("Messages", func() {
	Describe("NewHumanMessage", func() {
		It("should create a human message with trimmed content", func() {
			msg := chat.NewHumanMessage("  Hello World  ")

			Expect(msg.Type).To(Equal(chat.TypeHuman))
			Expect(msg.Role).To(Equal(chat.RoleUser))
			Expect(msg.Content).To(Equal("Hello World"))
			Expect(msg.IsHuman()).To(BeTrue())
			Expect(msg.IsAI()).To(BeFalse())
		})
	})

	Describe("type helpers", func() {
		It("should treat AIMessageChunk as ai", func() {
			Expect(chat.Message{Type: chat.TypeAIChunk}.IsAI()).To(BeTrue())
			Expect(chat.NewAIMessage("x").IsAI()).To(BeTrue())
		})

		It("should treat the user role as human", func() {
			Expect(chat.Message{Role: "user"}.IsHuman()).To(BeTrue())
		})

		It("should share the langchaingo vocabulary", func() {
			Expect(string(chat.TypeHuman)).To(Equal("human"))
			Expect(string(chat.TypeAI)).To(Equal("ai"))
			Expect(string(chat.TypeTool)).To(Equal("tool"))
		})
	})

	Describe("JSON decoding", func() {
		It("should decode string content", func() {
			var msg chat.Message
			Expect(json.Unmarshal([]byte(`{"id":"run-1","type":"AIMessageChunk","content":"hi"}`), &msg)).To(Succeed())

			Expect(msg.ID).To(Equal(chat.MessageID("run-1")))
			Expect(msg.Type).To(Equal(chat.TypeAIChunk))
			Expect(msg.Content).To(Equal("hi"))
			Expect(msg.ContentParts).To(BeEmpty())
		})

		It("should decode numeric history ids", func() {
			var msg chat.Message
			Expect(json.Unmarshal([]byte(`{"id":42,"type":"human","content":"q"}`), &msg)).To(Succeed())

			Expect(msg.ID).To(Equal(chat.MessageID("42")))
			n, ok := msg.ID.Int()
			Expect(ok).To(BeTrue())
			Expect(n).To(Equal(int64(42)))
		})

		It("should decode null content and null ids", func() {
			var msg chat.Message
			Expect(json.Unmarshal([]byte(`{"id":null,"type":"ai","content":null}`), &msg)).To(Succeed())

			Expect(msg.ID).To(BeEmpty())
			Expect(msg.Content).To(BeEmpty())
		})

		It("should decode multi-part content into parts", func() {
			var msg chat.Message
			data := `{"type":"human","content":[{"type":"text","text":"hi"},{"type":"image","url":"http://img/x.png"}]}`
			Expect(json.Unmarshal([]byte(data), &msg)).To(Succeed())

			Expect(msg.Content).To(BeEmpty())
			Expect(msg.ContentParts).To(HaveLen(2))
			Expect(msg.ContentParts[1].URL).To(Equal("http://img/x.png"))
			Expect(msg.Text()).To(Equal("hi"))
		})

		It("should keep non-string scalar content as text", func() {
			var msg chat.Message
			Expect(json.Unmarshal([]byte(`{"type":"tool","content":{"rows": 3}}`), &msg)).To(Succeed())
			Expect(msg.Content).To(Equal(`{"rows":3}`))
		})

		It("should decode history extras and embedded tool results", func() {
			data := `{
				"id": 7, "type": "ai", "content": "done",
				"created_at": "2025-01-02T03:04:05", "message_type": "text",
				"extra_metadata": {"model": "qwen"},
				"feedback": {"id": 3, "rating": "like"},
				"tool_calls": [{
					"id": "call_1", "name": "search",
					"function": {"name": "search"},
					"args": {"q": "x"},
					"status": "success",
					"tool_call_result": {"content": "found"}
				}]
			}`
			var msg chat.Message
			Expect(json.Unmarshal([]byte(data), &msg)).To(Succeed())

			Expect(msg.CreatedAt).To(Equal("2025-01-02T03:04:05"))
			Expect(msg.Kind).To(Equal("text"))
			Expect(msg.ExtraMetadata).To(HaveKeyWithValue("model", "qwen"))
			Expect(msg.Feedback.Rating).To(Equal("like"))
			Expect(msg.ToolCalls).To(HaveLen(1))

			tc := msg.ToolCalls[0]
			Expect(tc.ToolName()).To(Equal("search"))
			Expect(tc.Arguments()).To(MatchJSON(`{"q":"x"}`))
			Expect(tc.HasResult()).To(BeTrue())
			Expect(tc.ToolCallResult.Content).To(Equal("found"))
		})
	})

	Describe("JSON encoding", func() {
		It("should emit parts when there is no plain content", func() {
			msg := chat.Message{Type: chat.TypeHuman, ContentParts: []chat.ContentPart{{Type: "text", Text: "hi"}}}
			data, err := json.Marshal(msg)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"content":[{"type":"text","text":"hi"}]`))
		})

		It("should emit isLast for segmented messages", func() {
			data, err := json.Marshal(chat.Message{Type: chat.TypeAI, Content: "a", IsLast: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"isLast":true`))
		})
	})

	Describe("Text", func() {
		It("should join text parts for non-human messages", func() {
			msg := chat.Message{Type: chat.TypeAI, ContentParts: []chat.ContentPart{
				{Type: "text", Text: "a"}, {Type: "image"}, {Type: "text", Text: "b"},
			}}
			Expect(msg.Text()).To(Equal("ab"))
		})

		It("should return empty for human messages without text parts", func() {
			msg := chat.Message{Type: chat.TypeHuman, ContentParts: []chat.ContentPart{{Type: "image"}}}
			Expect(msg.Text()).To(BeEmpty())
		})
	})

	Describe("Reasoning", func() {
		It("should fall back to additional_kwargs", func() {
			msg := chat.Message{AdditionalKwargs: map[string]any{"reasoning_content": "think"}}
			Expect(msg.Reasoning()).To(Equal("think"))

			msg.ReasoningContent = "top"
			Expect(msg.Reasoning()).To(Equal("top"))
		})
	})

	Describe("Clone", func() {
		It("should not share nested state with the original", func() {
			result := chat.NewToolMessage("call_1", "found")
			orig := chat.Message{
				Type:             chat.TypeAI,
				AdditionalKwargs: map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{"a"}},
				ToolCalls:        []chat.ToolCall{{ID: "call_1", Args: json.RawMessage(`{}`), ToolCallResult: &result}},
				Feedback:         &chat.Feedback{Rating: "like"},
			}

			cp := orig.Clone()
			cp.AdditionalKwargs["nested"].(map[string]any)["k"] = "changed"
			cp.AdditionalKwargs["list"].([]any)[0] = "b"
			cp.ToolCalls[0].ID = "other"
			cp.ToolCalls[0].ToolCallResult.Content = "changed"
			cp.Feedback.Rating = "dislike"

			Expect(orig.AdditionalKwargs["nested"].(map[string]any)["k"]).To(Equal("v"))
			Expect(orig.AdditionalKwargs["list"].([]any)[0]).To(Equal("a"))
			Expect(orig.ToolCalls[0].ID).To(Equal("call_1"))
			Expect(orig.ToolCalls[0].ToolCallResult.Content).To(Equal("found"))
			Expect(orig.Feedback.Rating).To(Equal("like"))
		})
	})
})

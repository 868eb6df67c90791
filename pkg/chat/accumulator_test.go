package chat_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

func fragments(lines ...string) []chat.Message {
	out := make([]chat.Message, 0, len(lines))
	for _, line := range lines {
		var m chat.Message
		Expect(json.Unmarshal([]byte(line), &m)).To(Succeed())
		out = append(out, m)
	}
	return out
}

var _ = Describe("MergeFragments", func() {
	It("should reject an empty fragment list", func() {
		_, err := chat.MergeFragments(nil)
		Expect(err).To(MatchError(chat.ErrNoFragments))
	})

	It("should concatenate content in arrival order", func() {
		frags := fragments(`{"id":"m","type":"ai","content":"ab"}`, `{"id":"m","type":"ai","content":"c"}`)

		msg, err := chat.MergeFragments(frags)
		Expect(err).ToNot(HaveOccurred())
		Expect(msg.Content).To(Equal("abc"))

		reversed, err := chat.MergeFragments([]chat.Message{frags[1], frags[0]})
		Expect(err).ToNot(HaveOccurred())
		Expect(reversed.Content).To(Equal("cab"))
	})

	It("should not be commutative for single-character deltas", func() {
		frags := fragments(`{"type":"ai","content":"c"}`, `{"type":"ai","content":"a"}`)
		msg, _ := chat.MergeFragments(frags)
		Expect(msg.Content).To(Equal("ca"))
	})

	It("should produce identical output when merged twice", func() {
		frags := fragments(
			`{"id":"m","type":"AIMessageChunk","content":"He","additional_kwargs":{"reasoning_content":"th"}}`,
			`{"id":"m","type":"AIMessageChunk","content":"llo","reasoning_content":"r1","tool_call_chunks":[{"index":0,"id":"t1","name":"search","args":"{\"q\":"}]}`,
			`{"id":"m","type":"AIMessageChunk","additional_kwargs":{"reasoning_content":"ink"},"tool_call_chunks":[{"index":0,"args":"\"x\"}"}]}`,
		)

		first, err := chat.MergeFragments(frags)
		Expect(err).ToNot(HaveOccurred())
		second, err := chat.MergeFragments(frags)
		Expect(err).ToNot(HaveOccurred())

		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		Expect(a).To(Equal(b))
		Expect(first).To(Equal(second))
	})

	It("should not mutate its input", func() {
		frags := fragments(
			`{"id":"m","type":"AIMessageChunk","content":"a","additional_kwargs":{"reasoning_content":"x"}}`,
			`{"id":"m","content":"b","additional_kwargs":{"reasoning_content":"y"}}`,
		)
		_, err := chat.MergeFragments(frags)
		Expect(err).ToNot(HaveOccurred())

		Expect(frags[0].Content).To(Equal("a"))
		Expect(frags[0].Type).To(Equal(chat.TypeAIChunk))
		Expect(frags[0].AdditionalKwargs["reasoning_content"]).To(Equal("x"))
	})

	It("should rewrite AIMessageChunk to ai", func() {
		msg, _ := chat.MergeFragments(fragments(`{"type":"AIMessageChunk","content":"x"}`))
		Expect(msg.Type).To(Equal(chat.TypeAI))
	})

	It("should never change a human message's type", func() {
		msg, _ := chat.MergeFragments(fragments(`{"type":"human","content":"x"}`))
		Expect(msg.Type).To(Equal(chat.TypeHuman))
	})

	It("should reduce multi-part human content to its first text part", func() {
		msg, err := chat.MergeFragments(fragments(
			`{"type":"human","content":[{"type":"text","text":"hi"},{"type":"image","url":"http://img/a.png"}]}`,
		))
		Expect(err).ToNot(HaveOccurred())
		Expect(msg.Content).To(Equal("hi"))
	})

	It("should marshal image-only human content as an empty string", func() {
		msg, err := chat.MergeFragments(fragments(
			`{"id":"h","type":"human","content":[{"type":"image_url","image_url":{"url":"http://img/a.png"}}]}`,
		))
		Expect(err).ToNot(HaveOccurred())
		Expect(msg.Content).To(BeEmpty())
		Expect(msg.ContentParts).To(BeEmpty())

		data, err := json.Marshal(msg)
		Expect(err).ToNot(HaveOccurred())
		var wire map[string]any
		Expect(json.Unmarshal(data, &wire)).To(Succeed())
		Expect(wire).To(HaveKeyWithValue("content", ""))
	})

	It("should default missing content to empty", func() {
		msg, _ := chat.MergeFragments(fragments(`{"type":"ai"}`))
		Expect(msg.Content).To(Equal(""))
	})

	Describe("reasoning", func() {
		It("should stay empty until the first non-empty delta", func() {
			msg, _ := chat.MergeFragments(fragments(`{"type":"ai","content":"a"}`, `{"type":"ai","reasoning_content":""}`))
			Expect(msg.ReasoningContent).To(BeEmpty())
		})

		It("should concatenate top-level and nested deltas separately", func() {
			msg, _ := chat.MergeFragments(fragments(
				`{"type":"ai"}`,
				`{"type":"ai","reasoning_content":"a"}`,
				`{"type":"ai","additional_kwargs":{"reasoning_content":"n1"}}`,
				`{"type":"ai","reasoning_content":"b","additional_kwargs":{"reasoning_content":"n2"}}`,
			))
			Expect(msg.ReasoningContent).To(Equal("ab"))
			Expect(msg.AdditionalKwargs).To(HaveKeyWithValue("reasoning_content", "n1n2"))
		})
	})

	Describe("tool calls", func() {
		It("should merge chunks sharing an index into one call", func() {
			msg, err := chat.MergeFragments(fragments(
				`{"type":"AIMessageChunk","tool_call_chunks":[{"index":0,"id":"t1","name":"search","args":"{\"q\":"}]}`,
				`{"type":"AIMessageChunk","tool_call_chunks":[{"index":0,"args":"\"x\"}"}]}`,
			))
			Expect(err).ToNot(HaveOccurred())
			Expect(msg.ToolCalls).To(HaveLen(1))

			tc := msg.ToolCalls[0]
			Expect(tc.ID).To(Equal("t1"))
			Expect(tc.Function.Name).To(Equal("search"))
			Expect(tc.Function.Arguments).To(Equal(`{"q":"x"}`))
			Expect(tc.ToolCallResult).To(BeNil())
			Expect(msg.ToolCallChunks).To(BeEmpty())
		})

		It("should replace partial parsed calls echoed on the seed", func() {
			msg, _ := chat.MergeFragments(fragments(
				`{"type":"AIMessageChunk","tool_calls":[{"id":"t1","name":"search","args":{}}],"tool_call_chunks":[{"index":0,"id":"t1","name":"search","args":""}]}`,
				`{"type":"AIMessageChunk","tool_call_chunks":[{"index":0,"args":"{}"}]}`,
			))
			Expect(msg.ToolCalls).To(HaveLen(1))
			Expect(msg.ToolCalls[0].Function.Arguments).To(Equal("{}"))
		})

		It("should keep seed tool calls when nothing streams chunks", func() {
			msg, _ := chat.MergeFragments(fragments(
				`{"type":"ai","tool_calls":[{"id":"t1","name":"search","args":{"q":"x"}}]}`,
				`{"type":"ai","content":"ok"}`,
			))
			Expect(msg.ToolCalls).To(HaveLen(1))
			Expect(msg.ToolCalls[0].ToolName()).To(Equal("search"))
		})
	})
})

var _ = Describe("MessageAccumulator", func() {
	var accumulator *chat.MessageAccumulator

	BeforeEach(func() {
		accumulator = chat.NewMessageAccumulator()
	})

	It("should return false for an unknown id", func() {
		_, exists := accumulator.GetMessage("missing")
		Expect(exists).To(BeFalse())
		Expect(accumulator.Fragments("missing")).To(BeNil())
	})

	It("should merge buffered fragments per id", func() {
		accumulator.AddChunk("a", chat.Message{Type: chat.TypeAIChunk, Content: "he"})
		accumulator.AddChunk("a", chat.Message{Type: chat.TypeAIChunk, Content: "y"})

		msg, ok := accumulator.GetMessage("a")
		Expect(ok).To(BeTrue())
		Expect(msg.Content).To(Equal("hey"))
		Expect(msg.Type).To(Equal(chat.TypeAI))
	})

	It("should keep first-seen order across ids", func() {
		accumulator.AddChunk("b", chat.Message{Type: chat.TypeAI, Content: "1"})
		accumulator.AddChunk("a", chat.Message{Type: chat.TypeAI, Content: "2"})
		accumulator.AddChunk("b", chat.Message{Type: chat.TypeAI, Content: "3"})

		Expect(accumulator.IDs()).To(Equal([]chat.MessageID{"b", "a"}))
		msgs := accumulator.Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Content).To(Equal("13"))
		Expect(msgs[1].Content).To(Equal("2"))
	})

	It("should replace an entry on Start", func() {
		accumulator.AddChunk("req", chat.Message{Content: "old"})
		accumulator.Start("req", chat.NewHumanMessage("new"))

		Expect(accumulator.Fragments("req")).To(HaveLen(1))
		Expect(accumulator.Len()).To(Equal(1))
		msg, _ := accumulator.GetMessage("req")
		Expect(msg.Content).To(Equal("new"))
	})

	It("should remove and reset", func() {
		accumulator.AddChunk("a", chat.Message{})
		accumulator.AddChunk("b", chat.Message{})

		accumulator.Remove("a")
		Expect(accumulator.IDs()).To(Equal([]chat.MessageID{"b"}))
		Expect(func() { accumulator.Remove("missing") }).ToNot(Panic())

		accumulator.Reset()
		Expect(accumulator.Len()).To(Equal(0))
		Expect(accumulator.Messages()).To(BeEmpty())
	})

	It("should report stream stats", func() {
		accumulator.AddChunk("a", chat.Message{Content: "abc", ToolCallChunks: []chat.ToolCallChunk{{Index: 0}}})
		accumulator.AddChunk("a", chat.Message{Content: "de"})

		stats, ok := accumulator.GetStreamStats("a")
		Expect(ok).To(BeTrue())
		Expect(stats.ChunkCount).To(Equal(2))
		Expect(stats.ContentLength).To(Equal(5))
		Expect(stats.ToolCallChunks).To(Equal(1))
		Expect(stats.Duration).To(BeNumerically(">=", 0))
	})
})

package chat_test

import (
	"github.com/killallgit/agentstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ArtifactSet", func() {
	var (
		tokens *chat.TokenAccumulator
		set    *chat.ArtifactSet
	)

	BeforeEach(func() {
		tokens = chat.NewTokenAccumulator()
		set = chat.NewArtifactSet(tokens)
	})

	Describe("FinalizeToolMessage", func() {
		It("should wrap plain text as markdown", func() {
			art, ok := set.FinalizeToolMessage("n", "# Heading", nil)

			Expect(ok).To(BeTrue())
			Expect(art.Type).To(Equal(chat.ArtifactMarkdown))
			Expect(art.Content).To(Equal("# Heading"))
			Expect(art.ID).To(Equal("streaming_n"))
			Expect(art.IsComplete()).To(BeTrue())
		})

		It("should use the tool call id and structured fields", func() {
			art, ok := set.FinalizeToolMessage("writer", `{"type":"letter","title":"Reply","content":"Dear ..."}`,
				map[string]any{"tool_call_id": "call_1", "name": "draft_letter"})

			Expect(ok).To(BeTrue())
			Expect(art.ID).To(Equal("call_1"))
			Expect(art.Type).To(Equal("letter"))
			Expect(art.Title).To(Equal("Reply"))
			Expect(art.Content).To(Equal("Dear ..."))
			Expect(art.Meta).To(HaveKeyWithValue("name", "draft_letter"))
		})

		It("should read the payload from a nested task", func() {
			art, ok := set.FinalizeToolMessage("n", `{"task":{"title":"Check","content":"Step one"}}`, nil)

			Expect(ok).To(BeTrue())
			Expect(art.Title).To(Equal("Check"))
			Expect(art.Content).To(Equal("Step one"))
		})

		It("should serialize structured payloads", func() {
			art, ok := set.FinalizeToolMessage("n", `{"type":"form","content":{"fields":["a"]}}`, nil)

			Expect(ok).To(BeTrue())
			Expect(art.Content).To(MatchJSON(`{"fields":["a"]}`))
		})

		It("should treat a top-level array as its own payload", func() {
			art, ok := set.FinalizeToolMessage("n", `[1,2]`, nil)

			Expect(ok).To(BeTrue())
			Expect(art.Type).To(Equal(chat.ArtifactJSON))
			Expect(art.Content).To(MatchJSON(`[1,2]`))
		})

		It("should wrap malformed JSON as markdown", func() {
			art, ok := set.FinalizeToolMessage("n", `{"content": oops}`, nil)

			Expect(ok).To(BeTrue())
			Expect(art.Type).To(Equal(chat.ArtifactMarkdown))
			Expect(art.Content).To(Equal(`{"content": oops}`))
		})

		It("should discard output with an empty payload", func() {
			_, ok := set.FinalizeToolMessage("n", `{"status":"streaming"}`, nil)
			Expect(ok).To(BeFalse())

			_, ok = set.FinalizeToolMessage("n", "   ", nil)
			Expect(ok).To(BeFalse())

			Expect(set.Artifacts()).To(BeEmpty())
		})

		It("should replace an artifact with the same id", func() {
			meta := map[string]any{"tool_call_id": "call_1"}
			set.FinalizeToolMessage("n", `{"content":"v1","status":"streaming"}`, meta)
			art, _ := set.FinalizeToolMessage("n", `{"content":"v2"}`, meta)

			Expect(set.Artifacts()).To(HaveLen(1))
			Expect(set.Artifacts()[0].Content).To(Equal("v2"))
			Expect(art.Status).To(Equal(chat.ArtifactComplete))
		})

		It("should replace the node's draft artifact", func() {
			set.FinalizeToolMessage("n", "draft text", nil)
			set.FinalizeToolMessage("n", `{"content":"final"}`, map[string]any{"tool_call_id": "call_2"})

			arts := set.Artifacts()
			Expect(arts).To(HaveLen(1))
			Expect(arts[0].ID).To(Equal("call_2"))
		})

		It("should append artifacts from different calls", func() {
			set.FinalizeToolMessage("n", "one", map[string]any{"tool_call_id": "a"})
			set.FinalizeToolMessage("n", "two", map[string]any{"tool_call_id": "b"})

			Expect(set.Artifacts()).To(HaveLen(2))
		})

		It("should clear the node's accumulation", func() {
			tokens.Append("n", "partial")
			set.FinalizeToolMessage("n", "done", nil)

			Expect(tokens.Has("n")).To(BeFalse())
		})

		It("should keep extra structured fields as metadata", func() {
			art, _ := set.FinalizeToolMessage("n", `{"content":"x","section":"3"}`, nil)
			Expect(art.Meta).To(HaveKeyWithValue("section", "3"))
		})
	})

	Describe("Add and Get", func() {
		It("should not add an artifact twice", func() {
			Expect(set.Add(chat.Artifact{ID: "a", Content: "x"})).To(BeTrue())
			Expect(set.Add(chat.Artifact{ID: "a", Content: "y"})).To(BeFalse())

			art, ok := set.Get("a")
			Expect(ok).To(BeTrue())
			Expect(art.Content).To(Equal("x"))
		})
	})
})

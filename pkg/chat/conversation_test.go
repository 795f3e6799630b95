package chat_test

import (
	"github.com/killallgit/agentstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"
)

type mockTaskTracker struct {
	mock.Mock
}

func (m *mockTaskTracker) UpdateTasks(summary []string, currentIndex int) {
	m.Called(summary, currentIndex)
}

var _ = Describe("Conversation", func() {
	var (
		tracker *mockTaskTracker
		conv    *chat.Conversation
	)

	BeforeEach(func() {
		tracker = &mockTaskTracker{}
		conv = chat.NewConversation(chat.NewTokenAccumulator(), tracker)
	})

	Describe("AppendToken", func() {
		It("should keep exactly one draft per node with the accumulated text", func() {
			conv.AppendToken("n", "a")
			conv.AppendToken("n", "b")
			draft := conv.AppendToken("n", "c")

			Expect(draft.ID).To(Equal("streaming_n"))
			Expect(draft.Content).To(Equal("abc"))

			messages := conv.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Content).To(Equal("abc"))
		})

		It("should keep separate drafts for interleaved nodes", func() {
			conv.AppendToken("planner", "Plan")
			conv.AppendToken("writer", "Dra")
			conv.AppendToken("planner", "ning")
			conv.AppendToken("writer", "ft")

			drafts := conv.Drafts()
			Expect(drafts).To(HaveLen(2))
			Expect(drafts[0].Content).To(Equal("Planning"))
			Expect(drafts[1].Content).To(Equal("Draft"))
		})
	})

	Describe("Finalize", func() {
		It("should replace the draft with one final message", func() {
			for _, t := range []string{"a", "b", "c"} {
				conv.AppendToken("n", t)
			}

			msg := conv.Finalize("n", chat.Final{Role: chat.RoleAI, RunID: "r", Content: "abc"})
			Expect(msg.ID).To(Equal("r"))

			messages := conv.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].ID).To(Equal("r"))
			Expect(messages[0].Content).To(Equal("abc"))
			Expect(conv.Drafts()).To(BeEmpty())
		})

		It("should be idempotent for the same run id", func() {
			conv.AppendToken("n", "x")
			conv.Finalize("n", chat.Final{Role: chat.RoleAI, RunID: "r", Content: "x"})
			conv.Finalize("n", chat.Final{Role: chat.RoleAI, RunID: "r", Content: "x"})

			messages := conv.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].ID).To(Equal("r"))
		})

		It("should start a fresh accumulation after finalizing", func() {
			conv.AppendToken("n", "first")
			conv.Finalize("n", chat.Final{Role: chat.RoleAI, RunID: "r1", Content: "first"})

			draft := conv.AppendToken("n", "second")
			Expect(draft.Content).To(Equal("second"))
			Expect(conv.Messages()).To(HaveLen(2))
		})

		It("should only remove the draft of the finalized node", func() {
			conv.AppendToken("a", "one")
			conv.AppendToken("b", "two")
			conv.Finalize("a", chat.Final{Role: chat.RoleAI, RunID: "r", Content: "one"})

			drafts := conv.Drafts()
			Expect(drafts).To(HaveLen(1))
			Expect(drafts[0].Node()).To(Equal("b"))
		})

		It("should generate an id when the run id is missing", func() {
			msg := conv.Finalize("n", chat.Final{Content: "x"})

			Expect(msg.ID).To(HavePrefix("ai_"))
			Expect(msg.Role).To(Equal(chat.RoleAI))
		})

		It("should forward task progress to the tracker", func() {
			tracker.On("UpdateTasks", []string{"Read", "Summarize"}, 1).Once()

			conv.Finalize("n", chat.Final{
				Role:    chat.RoleAI,
				RunID:   "r",
				Content: "done",
				Meta: map[string]any{
					"task_summary":       []any{"Read", map[string]any{"title": "Summarize"}},
					"current_task_index": float64(1),
				},
			})

			tracker.AssertExpectations(GinkgoT())
		})

		It("should not call the tracker without task progress", func() {
			conv.Finalize("n", chat.Final{Role: chat.RoleAI, RunID: "r", Content: "done"})
			tracker.AssertNotCalled(GinkgoT(), "UpdateTasks", mock.Anything, mock.Anything)
		})
	})

	Describe("SetDraftMeta", func() {
		It("should create an empty draft carrying the metadata", func() {
			draft := conv.SetDraftMeta("agent", map[string]any{"activity": "Reading section 3"})

			Expect(draft.ID).To(Equal("streaming_agent"))
			Expect(draft.Content).To(BeEmpty())
			Expect(draft.Meta).To(HaveKeyWithValue("activity", "Reading section 3"))
			Expect(draft.Meta).To(HaveKeyWithValue("node", "agent"))
		})

		It("should keep streamed text when merging", func() {
			conv.AppendToken("agent", "Hi")
			draft := conv.SetDraftMeta("agent", map[string]any{"k": "v"})

			Expect(draft.Content).To(Equal("Hi"))
			Expect(conv.Messages()).To(HaveLen(1))
		})
	})

	Describe("AddHuman", func() {
		It("should append human text before later drafts", func() {
			conv.AddHuman("question")
			conv.AppendToken("n", "answer")

			messages := conv.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Role).To(Equal(chat.RoleHuman))
			Expect(messages[1].IsDraft()).To(BeTrue())
		})
	})

	Describe("Add", func() {
		It("should ignore messages with a known id", func() {
			Expect(conv.Add(chat.Message{ID: "m1", Role: chat.RoleAI, Content: "x"})).To(BeTrue())
			Expect(conv.Add(chat.Message{ID: "m1", Role: chat.RoleAI, Content: "y"})).To(BeFalse())
			Expect(conv.Len()).To(Equal(1))
		})
	})

	Describe("ResolveNode", func() {
		It("should map an untagged final onto the draft with the same text", func() {
			conv.AppendToken("n1", "Answer")
			conv.AppendToken("n2", "Side")
			Expect(conv.ResolveNode(chat.DefaultNode, "Answer")).To(Equal("n1"))
			Expect(conv.ResolveNode(chat.DefaultNode, "Side")).To(Equal("n2"))
		})

		It("should map an untagged final onto a lone open draft", func() {
			conv.AppendToken("writer", "partial")
			Expect(conv.ResolveNode(chat.DefaultNode, "partial text, completed")).To(Equal("writer"))
		})

		It("should not pick a draft when several unrelated drafts are open", func() {
			conv.AppendToken("planner", "a")
			conv.AppendToken("writer", "b")
			Expect(conv.ResolveNode(chat.DefaultNode, "c")).To(Equal(chat.DefaultNode))

			conv.Finalize(chat.DefaultNode, chat.Final{RunID: "r1", Content: "c"})
			Expect(conv.Drafts()).To(HaveLen(2))
		})

		It("should keep named nodes and an existing default draft", func() {
			conv.AppendToken("writer", "b")
			Expect(conv.ResolveNode("planner", "b")).To(Equal("planner"))

			conv.AppendToken(chat.DefaultNode, "c")
			Expect(conv.ResolveNode(chat.DefaultNode, "b")).To(Equal(chat.DefaultNode))
		})

		It("should fall back to the default node without drafts", func() {
			Expect(conv.ResolveNode(chat.DefaultNode, "x")).To(Equal(chat.DefaultNode))
		})

		It("should replace only the originating draft when two nodes stream", func() {
			conv.AppendToken("n1", "Answer")
			conv.AppendToken("n2", "Side")

			node := conv.ResolveNode(chat.DefaultNode, "Answer")
			conv.Finalize(node, chat.Final{RunID: "r1", Content: "Answer"})

			msgs := conv.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].ID).To(Equal(chat.DraftID("n2")))
			Expect(msgs[0].Content).To(Equal("Side"))
			Expect(msgs[1].ID).To(Equal("r1"))
		})
	})

	Describe("DropDraft", func() {
		It("should remove an open draft", func() {
			conv.AppendToken("n", "x")
			Expect(conv.DropDraft("n")).To(BeTrue())
			Expect(conv.DropDraft("n")).To(BeFalse())
			Expect(conv.Len()).To(Equal(0))
		})
	})

	It("should reset the transcript", func() {
		conv.AddHuman("x")
		conv.Reset()
		Expect(conv.Messages()).To(BeEmpty())
	})
})

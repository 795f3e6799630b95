package session_test

import (
	"errors"
	"sync"
	"time"

	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		store *session.Store
		id    string
	)

	BeforeEach(func() {
		store = session.NewStore()
		id = store.FindOrCreateSession(session.Context{ObjectKind: "pflicht", ObjectID: "42"})
	})

	Describe("FindOrCreateSession", func() {
		It("should return the same session for the same object", func() {
			again := store.FindOrCreateSession(session.Context{
				ObjectKind: "pflicht",
				ObjectID:   "42",
				Title:      "A different title",
				Extra:      map[string]any{"tab": "notes"},
			})
			Expect(again).To(Equal(id))
			Expect(store.List()).To(HaveLen(1))
		})

		It("should create a new session for another object", func() {
			other := store.FindOrCreateSession(session.Context{ObjectKind: "pflicht", ObjectID: "43"})
			Expect(other).ToNot(Equal(id))
			Expect(store.List()).To(HaveLen(2))
		})

		It("should assign fresh thread ids", func() {
			sess, ok := store.Get(id)
			Expect(ok).To(BeTrue())
			Expect(sess.ThreadID).ToNot(BeEmpty())
			Expect(sess.ThreadID).ToNot(Equal(sess.ID))
			Expect(sess.Context.ObjectKind).To(Equal("pflicht"))
		})

		It("should be safe for concurrent callers", func() {
			var wg sync.WaitGroup
			ids := make([]string, 10)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ids[i] = store.FindOrCreateSession(session.Context{ObjectKind: "gesetz", ObjectID: "bgb"})
				}(i)
			}
			wg.Wait()

			for _, got := range ids {
				Expect(got).To(Equal(ids[0]))
			}
		})
	})

	Describe("Get", func() {
		It("should return copies", func() {
			Expect(store.AddMessage(id, chat.Message{ID: "m1", Role: chat.RoleAI, Content: "x"})).To(Succeed())

			sess, _ := store.Get(id)
			sess.Messages[0].Content = "changed"

			fresh, _ := store.Get(id)
			Expect(fresh.Messages[0].Content).To(Equal("x"))
		})

		It("should report unknown sessions", func() {
			_, ok := store.Get("missing")
			Expect(ok).To(BeFalse())

			err := store.AddMessage("missing", chat.Message{ID: "m"})
			Expect(errors.Is(err, session.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("AddMessage", func() {
		It("should ignore duplicate ids", func() {
			msg := chat.Message{ID: "m1", Role: chat.RoleHuman, Content: "hi"}
			Expect(store.AddMessage(id, msg)).To(Succeed())
			Expect(store.AddMessage(id, msg)).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(1))
		})
	})

	Describe("UpdateStreamingMessage", func() {
		It("should append text to a trailing draft", func() {
			Expect(store.UpdateStreamingMessage(id, chat.Message{Content: "Hel"})).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.Message{Content: "lo"})).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(1))
			Expect(sess.Messages[0].IsDraft()).To(BeTrue())
			Expect(sess.Messages[0].Content).To(Equal("Hello"))
		})

		It("should start a new draft after a final message", func() {
			Expect(store.AddMessage(id, chat.Message{ID: "r1", Role: chat.RoleAI, Content: "done"})).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.Message{Content: "next"})).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(2))
			Expect(sess.Messages[1].IsDraft()).To(BeTrue())
		})

		It("should replace a draft with the same id", func() {
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n1", "He"))).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n2", "Other"))).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n1", "Hello"))).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(2))
			Expect(sess.Messages[0].Content).To(Equal("Hello"))
		})
	})

	Describe("SetStreamingDraftMeta", func() {
		It("should create an empty draft when none exists", func() {
			Expect(store.SetStreamingDraftMeta(id, map[string]any{"activity": "Reading chapter 14"})).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(1))
			Expect(sess.Messages[0].IsDraft()).To(BeTrue())
			Expect(sess.Messages[0].Content).To(BeEmpty())
			Expect(sess.Messages[0].Meta).To(HaveKeyWithValue("activity", "Reading chapter 14"))
		})

		It("should merge into the node's draft", func() {
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("agent", "Hi"))).To(Succeed())
			Expect(store.SetStreamingDraftMeta(id, map[string]any{"node": "agent", "k": "v"})).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(1))
			Expect(sess.Messages[0].Content).To(Equal("Hi"))
			Expect(sess.Messages[0].Meta).To(HaveKeyWithValue("k", "v"))
		})
	})

	Describe("FinalizeStreamingMessage", func() {
		It("should replace the node's draft with the final message", func() {
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n1", "Hello"))).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n2", "Other"))).To(Succeed())

			final := chat.Message{ID: "r1", Role: chat.RoleAI, Content: "Hello", Meta: map[string]any{"node": "n1"}}
			Expect(store.FinalizeStreamingMessage(id, final)).To(Succeed())
			Expect(store.FinalizeStreamingMessage(id, final)).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(2))
			Expect(sess.Messages[0].ID).To(Equal("streaming_n2"))
			Expect(sess.Messages[1].ID).To(Equal("r1"))
		})

		It("should drop every draft when no node is given", func() {
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n1", "a"))).To(Succeed())
			Expect(store.UpdateStreamingMessage(id, chat.NewDraftMessage("n2", "b"))).To(Succeed())
			Expect(store.FinalizeStreamingMessage(id, chat.Message{ID: "r1", Role: chat.RoleAI, Content: "ab"})).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.Messages).To(HaveLen(1))
		})
	})

	Describe("Streaming state", func() {
		It("should clear the flag when an error is set", func() {
			Expect(store.SetStreaming(id, true)).To(Succeed())
			Expect(store.SetError(id, "request failed with status 502")).To(Succeed())

			sess, _ := store.Get(id)
			Expect(sess.IsStreaming).To(BeFalse())
			Expect(sess.Error).To(Equal("request failed with status 502"))

			Expect(store.SetStreaming(id, true)).To(Succeed())
			sess, _ = store.Get(id)
			Expect(sess.Error).To(BeEmpty())
		})
	})

	Describe("ClearSession", func() {
		It("should empty messages and remint the thread id", func() {
			before, _ := store.Get(id)
			Expect(store.AddMessage(id, chat.Message{ID: "m1", Content: "x"})).To(Succeed())
			Expect(store.ClearSession(id)).To(Succeed())

			after, _ := store.Get(id)
			Expect(after.ID).To(Equal(before.ID))
			Expect(after.ThreadID).ToNot(Equal(before.ThreadID))
			Expect(after.Messages).To(BeEmpty())
		})
	})

	Describe("Subscribe", func() {
		It("should notify about changed sessions", func() {
			updates, cancel := store.Subscribe()
			defer cancel()

			Expect(store.AddMessage(id, chat.Message{ID: "m1"})).To(Succeed())
			Eventually(updates).WithTimeout(time.Second).Should(Receive(Equal(id)))
		})

		It("should close the channel on cancel", func() {
			updates, cancel := store.Subscribe()
			cancel()
			Eventually(updates).Should(BeClosed())
		})
	})
})

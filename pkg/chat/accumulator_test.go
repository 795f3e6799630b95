package chat_test

import (
	"github.com/killallgit/agentstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TokenAccumulator", func() {
	var accumulator *chat.TokenAccumulator

	BeforeEach(func() {
		accumulator = chat.NewTokenAccumulator()
	})

	It("should return empty content for unknown nodes", func() {
		Expect(accumulator.Content("missing")).To(BeEmpty())
		Expect(accumulator.Has("missing")).To(BeFalse())
	})

	It("should accumulate text per node", func() {
		Expect(accumulator.Append("a", "Hel")).To(Equal("Hel"))
		Expect(accumulator.Append("b", "x")).To(Equal("x"))
		Expect(accumulator.Append("a", "lo")).To(Equal("Hello"))

		Expect(accumulator.Nodes()).To(Equal([]string{"a", "b"}))
	})

	It("should reset a single node", func() {
		accumulator.Append("a", "1")
		accumulator.Append("b", "2")
		accumulator.Reset("a")

		Expect(accumulator.Has("a")).To(BeFalse())
		Expect(accumulator.Content("b")).To(Equal("2"))
	})

	It("should reset every node", func() {
		accumulator.Append("a", "1")
		accumulator.Append("b", "2")
		accumulator.ResetAll()

		Expect(accumulator.Nodes()).To(BeEmpty())
	})

	Describe("Stats", func() {
		It("should return false for unknown nodes", func() {
			stats, exists := accumulator.Stats("missing")
			Expect(exists).To(BeFalse())
			Expect(stats).To(Equal(chat.NodeStats{}))
		})

		It("should count chunks and length", func() {
			accumulator.Append("a", "ab")
			accumulator.Append("a", "cd")

			stats, exists := accumulator.Stats("a")
			Expect(exists).To(BeTrue())
			Expect(stats.ChunkCount).To(Equal(2))
			Expect(stats.ContentLength).To(Equal(4))
			Expect(stats.Duration).To(BeNumerically(">=", 0))
		})
	})
})

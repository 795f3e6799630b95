package chat_test

import (
	"os"
	"path/filepath"

	"github.com/killallgit/agentstream/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const sampleHistory = `[
  {"type":"human","id":"h1","content":"What applies here?"},
  {"type":"ai","run_id":"r1","content":"Paragraph 3 applies.","metadata":{"message_type":"chat"}},
  {"type":"ai","run_id":"r2","content":"{\"message_type\":\"routing\",\"next\":\"writer\"}"},
  {"type":"tool","id":"t1","tool_call_id":"call_1","content":"{\"status\":\"streaming\"}"},
  {"type":"ai","run_id":"r1","content":"Paragraph 3 applies."}
]`

var _ = Describe("History", func() {
	var assembler *chat.Assembler

	BeforeEach(func() {
		assembler = chat.NewAssembler(nil)
	})

	load := func(doc string) (int, int) {
		records, err := chat.DecodeHistory([]byte(doc))
		Expect(err).ToNot(HaveOccurred())
		return assembler.LoadHistory(records)
	}

	It("should keep chat messages and skip non-chat and duplicate records", func() {
		messages, artifacts := load(sampleHistory)

		Expect(messages).To(Equal(2))
		Expect(artifacts).To(Equal(0))

		transcript := assembler.Conversation.Messages()
		Expect(transcript).To(HaveLen(2))
		Expect(transcript[0].Role).To(Equal(chat.RoleHuman))
		Expect(transcript[0].ID).To(Equal("h1"))
		Expect(transcript[1].ID).To(Equal("r1"))
		Expect(assembler.Artifacts.Artifacts()).To(BeEmpty())
	})

	It("should treat undecodable structured content as plain chat text", func() {
		messages, _ := load(`[{"type":"ai","run_id":"r9","content":"{not json"}]`)

		Expect(messages).To(Equal(1))
		Expect(assembler.Conversation.Messages()[0].Content).To(Equal("{not json"))
	})

	It("should unwrap structured chat content", func() {
		load(`[{"type":"ai","run_id":"r3","content":"{\"message_type\":\"chat\",\"content\":\"Hi there\"}"}]`)

		Expect(assembler.Conversation.Messages()[0].Content).To(Equal("Hi there"))
	})

	It("should exclude structured content without a classification", func() {
		messages, _ := load(`[{"type":"ai","run_id":"r4","content":"{\"next\":\"writer\"}"}]`)
		Expect(messages).To(Equal(0))
	})

	It("should keep human records regardless of classification", func() {
		messages, _ := load(`[{"type":"human","id":"h2","content":"x","metadata":{"message_type":"internal"}}]`)
		Expect(messages).To(Equal(1))
	})

	It("should skip records without content", func() {
		messages, _ := load(`[{"type":"ai","run_id":"r5","content":"","tool_calls":[{"name":"read_section"}]}]`)
		Expect(messages).To(Equal(0))
	})

	It("should rebuild artifacts from tool records", func() {
		_, artifacts := load(`[{"type":"tool","id":"t2","tool_call_id":"call_2","name":"render","content":"{\"title\":\"Form\",\"content\":\"Body\"}"}]`)

		Expect(artifacts).To(Equal(1))
		arts := assembler.Artifacts.Artifacts()
		Expect(arts).To(HaveLen(1))
		Expect(arts[0].ID).To(Equal("call_2"))
		Expect(arts[0].Title).To(Equal("Form"))
	})

	It("should accept the wrapped document form", func() {
		records, err := chat.DecodeHistory([]byte(`{"messages":[{"type":"user","id":"h3","content":"hi"}]}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Role()).To(Equal(chat.RoleHuman))
	})

	It("should read history files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "history.json")
		Expect(os.WriteFile(path, []byte(sampleHistory), 0644)).To(Succeed())

		records, err := chat.ReadHistoryFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(5))
	})

	It("should replace a live transcript instead of appending to it", func() {
		assembler.Conversation.AppendToken("n1", "Hel")
		assembler.Conversation.Finalize("n1", chat.Final{RunID: "r1", Content: "Hello"})
		assembler.Artifacts.FinalizeToolMessage("tools", `{"id":"a1","title":"Old","content":"x"}`, nil)

		messages, _ := load(`[
			{"type":"human","content":"older question"},
			{"type":"ai","run_id":"h1","content":"older answer"}
		]`)
		Expect(messages).To(Equal(2))

		transcript := assembler.Conversation.Messages()
		Expect(transcript).To(HaveLen(2))
		Expect(transcript[0].Content).To(Equal("older question"))
		Expect(transcript[1].ID).To(Equal("h1"))
		Expect(assembler.Artifacts.Artifacts()).To(BeEmpty())
	})

	It("should map message class names onto transcript roles", func() {
		Expect(chat.HistoryRecord{Type: "HumanMessage"}.Role()).To(Equal(chat.RoleHuman))
		Expect(chat.HistoryRecord{Type: "AIMessageChunk"}.Role()).To(Equal(chat.RoleAI))
		Expect(chat.HistoryRecord{Type: "ToolMessage"}.Role()).To(Equal(chat.RoleTool))
		Expect(chat.HistoryRecord{Type: "widget"}.Role()).To(BeEmpty())
	})

	It("should report decode failures", func() {
		_, err := chat.DecodeHistory([]byte(`[{"type":`))
		Expect(err).To(HaveOccurred())

		_, err = chat.ReadHistoryFile(filepath.Join(GinkgoT().TempDir(), "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("failed to read history file")))
	})
})

var _ = Describe("Assembler", func() {
	It("should share accumulation between transcript and artifacts", func() {
		assembler := chat.NewAssembler(nil)
		assembler.Conversation.AppendToken("n", "partial")
		assembler.Artifacts.FinalizeToolMessage("n", "tool output", nil)

		Expect(assembler.Tokens().Has("n")).To(BeFalse())
	})

	It("should clear everything on reset", func() {
		assembler := chat.NewAssembler(nil)
		assembler.Conversation.AddHuman("x")
		assembler.Artifacts.FinalizeToolMessage("n", "y", nil)
		assembler.Reset()

		Expect(assembler.Conversation.Messages()).To(BeEmpty())
		Expect(assembler.Artifacts.Artifacts()).To(BeEmpty())
	})
})

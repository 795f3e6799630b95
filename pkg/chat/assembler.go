package chat

// Assembler couples the transcript and the artifact list of one session.
// Both sides share a single per-node token accumulator.
type Assembler struct {
	tokens       *TokenAccumulator
	Conversation *Conversation
	Artifacts    *ArtifactSet
}

func NewAssembler(tracker TaskTracker) *Assembler {
	tokens := NewTokenAccumulator()
	return &Assembler{
		tokens:       tokens,
		Conversation: NewConversation(tokens, tracker),
		Artifacts:    NewArtifactSet(tokens),
	}
}

// Begin clears the per-node accumulation at the start of a stream
func (a *Assembler) Begin() {
	a.tokens.ResetAll()
}

// Tokens exposes the shared accumulator
func (a *Assembler) Tokens() *TokenAccumulator {
	return a.tokens
}

// LoadHistory replaces the transcript and artifacts with the ones rebuilt
// from persisted records, in record order
func (a *Assembler) LoadHistory(records []HistoryRecord) (int, int) {
	a.Reset()
	return NewHistoryLoader(a.Conversation, a.Artifacts).Load(records)
}

// Reset clears transcript, artifacts and accumulation
func (a *Assembler) Reset() {
	a.tokens.ResetAll()
	a.Conversation.Reset()
	a.Artifacts.Reset()
}

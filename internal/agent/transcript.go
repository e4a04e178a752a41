package agent

import "github.com/strrl/statement-agent/internal/ai"

// Transcript is the append-only conversation history.
type Transcript struct {
	messages []ai.Message
}

func NewTranscript(seed ...ai.Message) *Transcript {
	t := &Transcript{}
	for _, m := range seed {
		t.Append(m)
	}
	return t
}

func (t *Transcript) Append(m ai.Message) {
	if len(m.ToolCalls) > 0 {
		m.ToolCalls = append([]ai.ToolCall(nil), m.ToolCalls...)
	}
	t.messages = append(t.messages, m)
}

// Messages returns a copy; callers cannot rewrite history.
func (t *Transcript) Messages() []ai.Message {
	out := make([]ai.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

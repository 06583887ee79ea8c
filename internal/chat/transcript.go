package chat

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type Message struct {
	Role    Role
	Content string
}

// Transcript is the ordered chat history. Messages are only ever appended,
// and only the content of a trailing ai message may grow.
type Transcript struct {
	messages []Message
}

// AppendUserAndPlaceholder appends the question and an empty ai message in
// one step. The placeholder becomes the target of AppendToLast.
func (t *Transcript) AppendUserAndPlaceholder(text string) {
	t.messages = append(t.messages,
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAI},
	)
}

// AppendToLast grows the trailing ai message. It does nothing when the
// transcript is empty or ends with a user message.
func (t *Transcript) AppendToLast(fragment string) {
	last := len(t.messages) - 1
	if last < 0 || t.messages[last].Role != RoleAI {
		return
	}
	t.messages[last].Content += fragment
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

func (t *Transcript) At(i int) Message {
	return t.messages[i]
}

// Messages returns a copy safe to hand to background commands.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastAnswer returns the newest ai message with non-blank content.
func (t *Transcript) LastAnswer() (string, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if m.Role == RoleAI && m.Content != "" {
			return m.Content, true
		}
	}
	return "", false
}

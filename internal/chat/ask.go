package chat

import "strings"

type AskPhase int

const (
	AskIdle AskPhase = iota
	Streaming
)

// Ask is the question/answer state machine over a Transcript.
//
// A stream that fails is left in Streaming with Stalled set: the generating
// indicator stays up and nothing is rolled back, but a new question is
// accepted because the failed stream will never deliver again.
type Ask struct {
	Transcript Transcript
	Phase      AskPhase
	Stalled    bool
	Err        error

	// Generation increases with every accepted question so late results
	// from an abandoned stream can be told apart.
	Generation int
}

// Submit validates the input and, when accepted, appends the user message
// and the ai placeholder. The caller clears the input box iff ok is true.
func (a *Ask) Submit(input string) (question string, ok bool) {
	question = strings.TrimSpace(input)
	if question == "" {
		return "", false
	}
	if a.Phase == Streaming && !a.Stalled {
		return "", false
	}
	a.Transcript.AppendUserAndPlaceholder(question)
	a.Phase = Streaming
	a.Stalled = false
	a.Err = nil
	a.Generation++
	return question, true
}

func (a *Ask) Receive(fragment string) {
	if a.Phase != Streaming || a.Stalled {
		return
	}
	a.Transcript.AppendToLast(fragment)
}

// Finish handles the server closing the stream.
func (a *Ask) Finish() {
	a.Phase = AskIdle
	a.Stalled = false
}

// Stall records a stream error without leaving Streaming.
func (a *Ask) Stall(err error) {
	a.Stalled = true
	a.Err = err
}

func (a *Ask) Generating() bool {
	return a.Phase == Streaming
}

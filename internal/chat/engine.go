// Package chat implements the Virtual Doctor response engine and its HTTP
// and WebSocket transports.
package chat

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fixed replies.
const (
	GreetingReply = "Hi, I am your Virtual Doctor. Tell me your health problem?"
	ThanksReply   = "You're welcome!"
	FarewellReply = "Goodbye!"
	FallbackReply = "Sorry, I don't have a solution for your problem."
)

// ReplyKind identifies which rule produced a reply.
type ReplyKind string

const (
	KindGreeting ReplyKind = "greeting"
	KindThanks   ReplyKind = "thanks"
	KindFarewell ReplyKind = "farewell"
	KindTip      ReplyKind = "tip"
	KindProblem  ReplyKind = "problem"
	KindFallback ReplyKind = "fallback"
)

// State is the per-session conversation state.
type State struct {
	Greeted       bool
	RemainingTips []string
}

// Reply is the engine's answer to one message.
type Reply struct {
	Text    string
	Kind    ReplyKind
	Keyword string // matched problem keyword, KindProblem only
}

// Engine selects replies. It holds only immutable data and is safe for
// concurrent use; all mutable state is passed in and returned.
type Engine struct {
	problems []Problem
	tips     TipPool
}

// NewEngine builds an engine over a validated catalog.
func NewEngine(k *Knowledge) *Engine {
	problems := make([]Problem, len(k.Problems))
	copy(problems, k.Problems)
	return &Engine{problems: problems, tips: NewTipPool(k.Tips)}
}

// NewState returns the state of a session that has not been greeted yet.
func (e *Engine) NewState() State {
	return State{RemainingTips: e.tips.Full()}
}

// TipCount returns the size of the tip catalog.
func (e *Engine) TipCount() int {
	return e.tips.Size()
}

// Respond computes the reply to message and the session's next state. The
// input state is not modified. Rules are checked in order and the first
// match wins; matching is case-insensitive substring containment.
func (e *Engine) Respond(state State, message string, rng Rand) (State, Reply) {
	if rng == nil {
		rng = globalRand{}
	}
	next := State{Greeted: state.Greeted, RemainingTips: e.tips.Restrict(state.RemainingTips)}

	if !next.Greeted {
		next.Greeted = true
		return next, Reply{Text: GreetingReply, Kind: KindGreeting}
	}

	msg := normalize(message)

	switch {
	case strings.Contains(msg, "thank"):
		return next, Reply{Text: ThanksReply, Kind: KindThanks}
	case strings.Contains(msg, "bye"):
		return next, Reply{Text: FarewellReply, Kind: KindFarewell}
	case strings.Contains(msg, "health tip"):
		tip, rest := e.tips.Draw(next.RemainingTips, rng)
		next.RemainingTips = rest
		return next, Reply{Text: "Here is a health tip for you: " + tip, Kind: KindTip}
	}

	for _, p := range e.problems {
		if strings.Contains(msg, p.Keyword) {
			return next, Reply{
				Text:    fmt.Sprintf("Solution for %s: %s. Medicine: %s.", p.Keyword, p.Solution, p.Medicine),
				Kind:    KindProblem,
				Keyword: p.Keyword,
			}
		}
	}

	return next, Reply{Text: FallbackReply, Kind: KindFallback}
}

// normalize lower-cases message. No trimming or punctuation stripping.
func normalize(message string) string {
	return cases.Lower(language.Und).String(message)
}

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstRand always picks index 0.
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

// lastRand always picks the final index.
type lastRand struct{}

func (lastRand) IntN(n int) int { return n - 1 }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	k, err := DefaultKnowledge()
	require.NoError(t, err)
	return NewEngine(k)
}

func greeted(e *Engine) State {
	s := e.NewState()
	s.Greeted = true
	return s
}

func TestFirstMessageIsAlwaysGreeting(t *testing.T) {
	e := newTestEngine(t)

	for _, msg := range []string{"", "I have a headache", "thanks", "bye", "health tip"} {
		next, reply := e.Respond(e.NewState(), msg, firstRand{})
		assert.Equal(t, GreetingReply, reply.Text, "message %q", msg)
		assert.Equal(t, KindGreeting, reply.Kind)
		assert.True(t, next.Greeted)
		assert.Len(t, next.RemainingTips, e.TipCount(), "greeting must not draw a tip")
	}
}

func TestPriorityChain(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		message string
		want    string
		kind    ReplyKind
	}{
		{name: "thanks", message: "Thank you doctor", want: ThanksReply, kind: KindThanks},
		{name: "thanks beats bye", message: "thanks, bye", want: ThanksReply, kind: KindThanks},
		{name: "thanks beats problem", message: "thanks, my headache is gone", want: ThanksReply, kind: KindThanks},
		{name: "bye", message: "BYE", want: FarewellReply, kind: KindFarewell},
		{name: "bye beats problem", message: "goodbye headache", want: FarewellReply, kind: KindFarewell},
		{name: "bye inside word", message: "abyeb", want: FarewellReply, kind: KindFarewell},
		{
			name:    "problem",
			message: "I have a Headache",
			want:    "Solution for headache: You should take rest, avoid screen time, and stay hydrated.. Medicine: You can take paracetamol or ibuprofen for relief..",
			kind:    KindProblem,
		},
		{name: "substring match", message: "feeling feverish", want: "Solution for fever: ", kind: KindProblem},
		{name: "table order wins", message: "cough and fever", want: "Solution for fever: ", kind: KindProblem},
		{name: "first table keyword only", message: "my stomach ache and fever", want: "Solution for fever: ", kind: KindProblem},
		{name: "health tip beats problem", message: "a health tip for my cough", want: "Here is a health tip for you: ", kind: KindTip},
		{name: "multi-word keyword", message: "my stomach ache is bad", want: "Solution for stomach ache: ", kind: KindProblem},
		{name: "fallback", message: "my knee hurts", want: FallbackReply, kind: KindFallback},
		{name: "empty after greeting", message: "", want: FallbackReply, kind: KindFallback},
		{name: "no trimming", message: "health  tip", want: FallbackReply, kind: KindFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reply := e.Respond(greeted(e), tt.message, firstRand{})
			assert.Equal(t, tt.kind, reply.Kind)
			assert.True(t, strings.HasPrefix(reply.Text, tt.want), "got %q", reply.Text)
		})
	}
}

func TestHealthTipDrawsWithoutReplacement(t *testing.T) {
	e := newTestEngine(t)
	state := greeted(e)

	seen := make(map[string]bool)
	for i := 0; i < e.TipCount(); i++ {
		var reply Reply
		state, reply = e.Respond(state, "Give me a HEALTH TIP", lastRand{})
		require.Equal(t, KindTip, reply.Kind)
		tip := strings.TrimPrefix(reply.Text, "Here is a health tip for you: ")
		assert.False(t, seen[tip], "tip repeated within a cycle: %q", tip)
		seen[tip] = true
	}
	assert.Len(t, seen, e.TipCount())
	assert.Empty(t, state.RemainingTips)

	// The next draw refills from the catalog.
	state, reply := e.Respond(state, "health tip", firstRand{})
	assert.Equal(t, KindTip, reply.Kind)
	assert.Len(t, state.RemainingTips, e.TipCount()-1)
}

func TestRespondDoesNotMutateInput(t *testing.T) {
	e := newTestEngine(t)
	state := greeted(e)
	before := append([]string(nil), state.RemainingTips...)

	next, _ := e.Respond(state, "health tip", firstRand{})

	assert.Equal(t, before, state.RemainingTips)
	assert.Len(t, next.RemainingTips, len(before)-1)
}

func TestRespondDropsUnknownTips(t *testing.T) {
	e := newTestEngine(t)
	state := State{Greeted: true, RemainingTips: []string{"retired tip"}}

	next, reply := e.Respond(state, "health tip", firstRand{})

	assert.Equal(t, KindTip, reply.Kind)
	assert.NotContains(t, reply.Text, "retired tip")
	assert.Len(t, next.RemainingTips, e.TipCount()-1)
}

func TestNormalizeFoldsUnicode(t *testing.T) {
	assert.Equal(t, "i have a headache", normalize("I HAVE A HEADACHE"))
	assert.Equal(t, "  fever  ", normalize("  FEVER  "))
	assert.Equal(t, "übelkeit", normalize("ÜBELKEIT"))
}

func TestEngineCustomCatalog(t *testing.T) {
	e := NewEngine(&Knowledge{
		Tips:     []string{"only tip"},
		Problems: []Problem{{Keyword: "rash", Solution: "keep it dry", Medicine: "calamine"}},
	})

	_, reply := e.Respond(State{Greeted: true}, "a rash", firstRand{})
	assert.Equal(t, "Solution for rash: keep it dry. Medicine: calamine.", reply.Text)
	assert.Equal(t, "rash", reply.Keyword)

	_, reply = e.Respond(State{Greeted: true}, "health tip", nil)
	assert.Equal(t, "Here is a health tip for you: only tip", reply.Text)
}

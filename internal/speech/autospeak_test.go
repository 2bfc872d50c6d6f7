package speech

import (
	"context"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/audio"
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/session"
	"github.com/alecci-media/boardroom/internal/tts"
	"github.com/stretchr/testify/require"
)

func assistant(id, text string, p persona.ID) conversation.Message {
	return conversation.Message{
		ID:        id,
		Role:      conversation.RoleAssistant,
		Parts:     []conversation.Part{{Type: conversation.PartText, Text: text}},
		PersonaID: p,
	}
}

func snapshot(status session.Status, msgs ...conversation.Message) session.Snapshot {
	return session.Snapshot{Status: status, Messages: msgs, Selected: persona.Kim, Default: persona.Alexandria}
}

func TestAutoSpeakerSpeaksFinishedReplyOnce(t *testing.T) {
	synth := newGatedSynth()
	player := &holdPlayer{}
	ctrl := NewController(synth, player, audio.NewArbiter(newLogger()), persona.Default(), Options{Source: audio.SourceAuto, Logger: newLogger()})
	defer ctrl.Close()
	auto := NewAutoSpeaker(context.Background(), ctrl, true, newLogger())

	reply := assistant("a1", "**Q3** looks strong", persona.Collaborative)
	auto.Observe(snapshot(session.StatusSubmitted))
	auto.Observe(snapshot(session.StatusStreaming, reply))
	auto.Observe(snapshot(session.StatusReady, reply))
	auto.Observe(snapshot(session.StatusReady, reply))

	require.Eventually(t, func() bool { return synth.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	synth.mu.Lock()
	req := synth.requests[0]
	synth.mu.Unlock()
	require.Equal(t, "Q3 looks strong", req.Text)
	require.Equal(t, persona.Collaborative, req.PersonaID)

	synth.release("Q3 looks strong", nil)
	require.Eventually(t, func() bool { return stateOf(ctrl) == StatePlaying }, time.Second, 5*time.Millisecond)

	// Streaming the same message again does not repeat it.
	auto.Observe(snapshot(session.StatusStreaming, reply))
	auto.Observe(snapshot(session.StatusReady, reply))
	require.Equal(t, 1, synth.requestCount())

	auto.SetEnabled(false)
	require.False(t, auto.Enabled())
	require.Equal(t, StateIdle, stateOf(ctrl))
}

func TestAutoSpeakerUsesFallbackPersonaForLegacyReplies(t *testing.T) {
	synth := newGatedSynth()
	ctrl := NewController(synth, &holdPlayer{}, audio.NewArbiter(newLogger()), persona.Default(), Options{Source: audio.SourceAuto, Logger: newLogger()})
	defer ctrl.Close()
	auto := NewAutoSpeaker(context.Background(), ctrl, true, newLogger())

	legacy := assistant("a1", "hello", "")
	auto.Observe(snapshot(session.StatusStreaming, legacy))
	auto.Observe(snapshot(session.StatusReady, legacy))

	require.Eventually(t, func() bool { return synth.requestCount() == 1 }, time.Second, 5*time.Millisecond)
	synth.mu.Lock()
	require.Equal(t, persona.Alexandria, synth.requests[0].PersonaID)
	synth.mu.Unlock()
	synth.release("hello", &tts.ProviderError{StatusCode: 503})
}

func TestAutoSpeakerSkipsWhenDisabledOrNotAssistant(t *testing.T) {
	synth := newGatedSynth()
	ctrl := NewController(synth, &holdPlayer{}, audio.NewArbiter(newLogger()), persona.Default(), Options{Source: audio.SourceAuto, Logger: newLogger()})
	defer ctrl.Close()

	off := NewAutoSpeaker(context.Background(), ctrl, false, newLogger())
	reply := assistant("a1", "hello", persona.Kim)
	off.Observe(snapshot(session.StatusStreaming, reply))
	off.Observe(snapshot(session.StatusReady, reply))

	on := NewAutoSpeaker(context.Background(), ctrl, true, newLogger())
	user := conversation.TextMessage("u1", "hi", time.Now())
	on.Observe(snapshot(session.StatusStreaming, reply, user))
	on.Observe(snapshot(session.StatusReady, reply, user))

	// Ready without a preceding stream (e.g. history load) is ignored.
	on.Observe(snapshot(session.StatusReady, reply))

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, synth.requestCount())
}

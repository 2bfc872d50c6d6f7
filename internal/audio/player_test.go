package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (t *trackingBody) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if c, ok := t.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *trackingBody) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func TestDiscardPlayerCompletes(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("audio")}
	h, err := NewDiscardPlayer(0).Play(context.Background(), body, "audio/mpeg")
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not finish")
	}
	require.NoError(t, h.Err())
	require.True(t, body.isClosed())
}

func TestStopInterruptsBlockedPlayback(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	body := &trackingBody{Reader: pr}

	h, err := NewDiscardPlayer(0).Play(context.Background(), body, "audio/mpeg")
	require.NoError(t, err)
	_, err = pw.Write([]byte("first bytes"))
	require.NoError(t, err)

	h.Stop()
	h.Stop()
	require.True(t, body.isClosed())
	require.NoError(t, h.Err(), "a stopped playback is not an error")
}

func TestExecPlayerPipesAudio(t *testing.T) {
	p, err := NewExecPlayer("cat")
	require.NoError(t, err)
	h, err := p.Play(context.Background(), io.NopCloser(strings.NewReader("mp3")), "audio/mpeg")
	require.NoError(t, err)
	<-h.Done()
	require.NoError(t, h.Err())

	_, err = NewExecPlayer("")
	require.Error(t, err)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	chunks   []protocol.AudioChunk
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	var chunk protocol.AudioChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return err
	}
	f.mu.Lock()
	f.subjects = append(f.subjects, subject)
	f.chunks = append(f.chunks, chunk)
	f.mu.Unlock()
	return nil
}

func TestBusPlayerPublishesChunks(t *testing.T) {
	pub := &fakePublisher{}
	payload := bytes.Repeat([]byte{0xAB}, busChunkSize+10)
	h, err := NewBusPlayer(pub, "kitchen", newLogger()).Play(context.Background(), io.NopCloser(bytes.NewReader(payload)), "audio/mpeg")
	require.NoError(t, err)
	<-h.Done()
	require.NoError(t, h.Err())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.chunks, 2)
	require.Equal(t, "tts.audio.kitchen", pub.subjects[0])
	require.Equal(t, 0, pub.chunks[0].Sequence)
	require.False(t, pub.chunks[0].Final)
	require.Len(t, pub.chunks[0].Data, busChunkSize)
	require.True(t, pub.chunks[1].Final)
	require.Len(t, pub.chunks[1].Data, 10)
	require.Equal(t, pub.chunks[0].PlaybackID, pub.chunks[1].PlaybackID)
}

func TestBusPlayerStopNotice(t *testing.T) {
	pub := &fakePublisher{}
	pr, pw := io.Pipe()
	defer pw.Close()

	h, err := NewBusPlayer(pub, "", newLogger()).Play(context.Background(), pr, "audio/mpeg")
	require.NoError(t, err)
	h.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Equal(t, []string{protocol.SubjectAudioStop}, pub.subjects)
}

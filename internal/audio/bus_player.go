package audio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/google/uuid"
)

const busChunkSize = 16 * 1024

// Publisher is the subset of a NATS connection the bus player needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type busPlayer struct {
	pub    Publisher
	target string
	logger *slog.Logger
}

// NewBusPlayer forwards audio to a remote speaker over the message bus. Chunks
// go to tts.audio.<target>; a stop notice goes to tts.audio.stop when
// playback is cut short.
func NewBusPlayer(pub Publisher, target string, logger *slog.Logger) Player {
	return &busPlayer{pub: pub, target: target, logger: logger.With(slog.String("component", "bus-player"))}
}

func (b *busPlayer) subject() string {
	if b.target == "" {
		return protocol.SubjectAudioPrefix
	}
	return protocol.SubjectAudioPrefix + "." + b.target
}

func (b *busPlayer) Play(ctx context.Context, body io.ReadCloser, contentType string) (Handle, error) {
	playbackID := uuid.NewString()
	return startPlayback(ctx, body, func(ctx context.Context) error {
		buf := make([]byte, busChunkSize)
		sequence := 0
		for {
			n, err := io.ReadFull(body, buf)
			final := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
			if ctx.Err() != nil {
				b.publishStop(playbackID)
				return ctx.Err()
			}
			if err != nil && !final {
				b.publishStop(playbackID)
				return err
			}
			if n > 0 || final {
				if perr := b.publishChunk(protocol.AudioChunk{
					PlaybackID:  playbackID,
					Target:      b.target,
					ContentType: contentType,
					Sequence:    sequence,
					Data:        buf[:n],
					Final:       final,
				}); perr != nil {
					return perr
				}
				sequence++
			}
			if final {
				return nil
			}
		}
	}), nil
}

func (b *busPlayer) publishChunk(chunk protocol.AudioChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return b.pub.Publish(b.subject(), data)
}

func (b *busPlayer) publishStop(playbackID string) {
	data, err := json.Marshal(protocol.AudioChunk{PlaybackID: playbackID, Target: b.target, Final: true})
	if err != nil {
		return
	}
	if err := b.pub.Publish(protocol.SubjectAudioStop, data); err != nil {
		b.logger.Warn("failed to publish stop notice", slogError(err))
	}
}

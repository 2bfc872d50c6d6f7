package stt

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// DecodeWAV reads a PCM WAV file into a 16-bit clip. 8, 24 and 32-bit
// sources are rescaled.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: not a PCM wav file", ErrInvalidAudio)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return Clip{}, fmt.Errorf("%w: missing format", ErrInvalidAudio)
	}
	return Clip{
		Samples:    to16Bit(buf.Data, int(dec.BitDepth)),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func to16Bit(data []int, depth int) []int {
	switch {
	case depth == 8:
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = (v - 128) << 8
		}
		return out
	case depth > 16:
		shift := depth - 16
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = v >> shift
		}
		return out
	default:
		return data
	}
}

// EncodeWAV writes clip as a 16-bit PCM WAV file.
func EncodeWAV(w io.WriteSeeker, clip Clip) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           clip.Samples,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, clip.SampleRate, 16, clip.Channels, pcmFormat)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

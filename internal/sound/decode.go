// ABOUTME: Audio decoding into S16LE PCM for presets and custom files.
// ABOUTME: MP3, WAV, FLAC and OGG/Vorbis go through beep; AIFF through go-audio.

package sound

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// decoded is PCM plus the format needed to play it
type decoded struct {
	pcm        []byte
	sampleRate int
	channels   int
	bitDepth   int
}

// source is what the decoders need: a seekable stream that can be closed.
type source interface {
	io.ReadSeeker
	io.Closer
}

// decode decodes r according to the sniffed format
func decode(r source, format string) (*decoded, error) {
	switch format {
	case FormatMP3:
		return decodeBeep(mp3.Decode(r))
	case FormatWAV:
		return decodeBeep(wav.Decode(r))
	case FormatFLAC:
		return decodeBeep(flac.Decode(r))
	case FormatOGG:
		return decodeBeep(vorbis.Decode(r))
	case FormatAIFF:
		return decodeAIFF(r)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
}

func decodeBeep(streamer beep.StreamSeekCloser, format beep.Format, err error) (*decoded, error) {
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		channels = 1
	}

	samples := streamToSamples(streamer, channels)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}

	return &decoded{
		pcm:        samplesToBytes(samples),
		sampleRate: int(format.SampleRate),
		channels:   channels,
		bitDepth:   16,
	}, nil
}

func decodeAIFF(r io.ReadSeeker) (*decoded, error) {
	decoder := aiff.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid AIFF file")
	}

	decoder.ReadInfo()

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read AIFF data: %w", err)
	}

	// Convert samples based on bit depth
	bitDepth := int(decoder.BitDepth)
	samples := intBufferToSamples(buf, bitDepth)
	return &decoded{
		pcm:        samplesToBytes(samples),
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   16,
	}, nil
}

// streamToSamples drains a beep streamer into interleaved int16 samples.
// Only the left channel is kept when channels is 1.
func streamToSamples(streamer beep.Streamer, channels int) []int16 {
	var allSamples []int16
	buffer := make([][2]float64, 512)

	for {
		n, ok := streamer.Stream(buffer)
		for i := 0; i < n; i++ {
			allSamples = append(allSamples, toInt16(buffer[i][0]))
			if channels >= 2 {
				allSamples = append(allSamples, toInt16(buffer[i][1]))
			}
		}
		if !ok || n == 0 {
			break
		}
	}

	return allSamples
}

func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// intBufferToSamples converts go-audio IntBuffer to int16 samples
// bitDepth specifies the source bit depth (8, 16, 24, 32) for proper scaling
func intBufferToSamples(buf *audio.IntBuffer, bitDepth int) []int16 {
	samples := make([]int16, len(buf.Data))

	switch bitDepth {
	case 8:
		for i, v := range buf.Data {
			samples[i] = int16(v << 8)
		}
	case 24:
		for i, v := range buf.Data {
			samples[i] = int16(v >> 8)
		}
	case 32:
		for i, v := range buf.Data {
			samples[i] = int16(v >> 16)
		}
	default:
		// 16-bit, or unknown depth treated as 16-bit
		for i, v := range buf.Data {
			samples[i] = int16(v)
		}
	}

	return samples
}

// samplesToBytes converts int16 samples to bytes (little-endian)
func samplesToBytes(samples []int16) []byte {
	bytes := make([]byte, len(samples)*2)
	for i, s := range samples {
		bytes[i*2] = byte(s)
		bytes[i*2+1] = byte(s >> 8)
	}
	return bytes
}

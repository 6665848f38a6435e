package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/vladbelms/neural-critic/internal/critic"
)

// Extensions lists the audio container formats Decode understands.
var Extensions = []string{".mp3", ".wav"}

// Supported reports whether the file looks like audio Decode can handle.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode reads an audio file into a mono waveform. Unknown or corrupt input
// is reported as critic.ErrUnsupportedAudio.
func Decode(path string) (critic.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return critic.Waveform{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return decodeMP3(f, path)
	case ".wav":
		return decodeWAV(f, path)
	}
	return critic.Waveform{}, fmt.Errorf("%s: unrecognized extension: %w", path, critic.ErrUnsupportedAudio)
}

func decodeMP3(f *os.File, path string) (critic.Waveform, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return critic.Waveform{}, fmt.Errorf("%s: %v: %w", path, err, critic.ErrUnsupportedAudio)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	var samples []float64
	buf := make([]byte, 4096)
	for {
		n, err := decoder.Read(buf)
		for i := 0; i+3 < n; i += 4 {
			left := int16(buf[i]) | int16(buf[i+1])<<8
			right := int16(buf[i+2]) | int16(buf[i+3])<<8
			samples = append(samples, (float64(left)+float64(right))/(2*32768.0))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return critic.Waveform{}, fmt.Errorf("%s: %v: %w", path, err, critic.ErrUnsupportedAudio)
		}
	}

	if len(samples) == 0 {
		return critic.Waveform{}, fmt.Errorf("%s: no samples: %w", path, critic.ErrUnsupportedAudio)
	}
	return critic.Waveform{SampleRate: decoder.SampleRate(), Samples: samples}, nil
}

func decodeWAV(f *os.File, path string) (critic.Waveform, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return critic.Waveform{}, fmt.Errorf("%s: not a valid wav file: %w", path, critic.ErrUnsupportedAudio)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return critic.Waveform{}, fmt.Errorf("%s: %v: %w", path, err, critic.ErrUnsupportedAudio)
	}
	if buf == nil || len(buf.Data) == 0 {
		return critic.Waveform{}, fmt.Errorf("%s: no samples: %w", path, critic.ErrUnsupportedAudio)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := float64(int64(1) << (decoder.BitDepth - 1))

	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i+channels-1 < len(buf.Data); i += channels {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i+c])
		}
		samples = append(samples, sum/(float64(channels)*scale))
	}

	return critic.Waveform{SampleRate: buf.Format.SampleRate, Samples: samples}, nil
}

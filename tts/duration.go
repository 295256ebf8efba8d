package tts

import (
	"errors"
	"fmt"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrTooShort means the audio decoded but is shorter than required.
	ErrTooShort = errors.New("audio is too short")
	// ErrUndecodable means the file is not a readable MP3 stream.
	ErrUndecodable = errors.New("audio could not be decoded")
)

// Duration decodes the MP3 at path and returns its length in seconds.
func Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	// Decoded output is 16-bit stereo: four bytes per sample.
	samples := d.Length() / 4
	if samples <= 0 || d.SampleRate() == 0 {
		return 0, ErrUndecodable
	}
	return float64(samples) / float64(d.SampleRate()), nil
}

// CheckDuration returns the duration of the MP3 at path, or an error
// wrapping ErrTooShort or ErrUndecodable when the audio is unusable.
func CheckDuration(path string, min float64) (float64, error) {
	secs, err := Duration(path)
	if err != nil {
		return 0, err
	}
	if secs < min {
		return secs, fmt.Errorf("%w: %.2fs < %.2fs", ErrTooShort, secs, min)
	}
	return secs, nil
}

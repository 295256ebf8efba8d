package converters

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AudioFormat describes one ffmpeg audio target.
type AudioFormat struct {
	Codec    string
	Ext      string
	Lossless bool
}

// AudioFormats lists the targets ExtractAudio accepts.
var AudioFormats = map[string]AudioFormat{
	"mp3":  {Codec: "libmp3lame", Ext: ".mp3"},
	"wav":  {Codec: "pcm_s16le", Ext: ".wav", Lossless: true},
	"aac":  {Codec: "aac", Ext: ".aac"},
	"ogg":  {Codec: "libvorbis", Ext: ".ogg"},
	"flac": {Codec: "flac", Ext: ".flac", Lossless: true},
}

// Bitrates lists the accepted lossy bitrates.
var Bitrates = map[string]bool{
	"64k": true, "96k": true, "128k": true, "160k": true,
	"192k": true, "256k": true, "320k": true,
}

// AudioOptions controls ExtractAudio. Zero Start and End mean the whole track.
type AudioOptions struct {
	Format  string
	Bitrate string
	Start   time.Duration
	End     time.Duration
}

// Validate checks the option combination before any work is done.
func (o AudioOptions) Validate() error {
	if _, ok := AudioFormats[o.Format]; !ok {
		return fmt.Errorf("unsupported audio format %q", o.Format)
	}
	if o.Bitrate != "" && !Bitrates[o.Bitrate] {
		return fmt.Errorf("unsupported bitrate %q", o.Bitrate)
	}
	if o.Start < 0 || o.End < 0 {
		return fmt.Errorf("timestamps must not be negative")
	}
	if o.End > 0 && o.End <= o.Start {
		return fmt.Errorf("end must be after start")
	}
	return nil
}

// ExtractAudio strips the video stream from inputPath with ffmpeg and
// encodes the audio into outputPath.
func (t *Toolbox) ExtractAudio(ctx context.Context, inputPath, outputPath string, opts AudioOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f := AudioFormats[opts.Format]

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath}
	if opts.Start > 0 {
		args = append(args, "-ss", seconds(opts.Start))
	}
	if opts.End > 0 {
		args = append(args, "-to", seconds(opts.End))
	}
	args = append(args, "-vn", "-acodec", f.Codec)
	if opts.Bitrate != "" && !f.Lossless {
		args = append(args, "-b:a", opts.Bitrate)
	}
	args = append(args, outputPath)

	if err := t.run(ctx, "ffmpeg", t.FFmpegPath, args...); err != nil {
		return err
	}
	if err := nonEmpty(outputPath); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ParseTimestamp accepts plain seconds ("90", "12.5") or clock notation
// ("MM:SS", "HH:MM:SS", with optional fractional seconds). Empty input is zero.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		// Only the last component may be fractional; all but the first stay below 60.
		if i < len(parts)-1 && v != float64(int(v)) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), nil
}

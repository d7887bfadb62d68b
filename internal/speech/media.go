package speech

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/media/ffprobe"
)

// gainThresholdDB is the smallest adjustment worth a re-encode.
const gainThresholdDB = 1.0

// FFAudioProcessor implements AudioProcessor with ffprobe and ffmpeg.
type FFAudioProcessor struct {
	FFprobeBinary string
	FFmpeg        *ffmpeg.Client
}

// NewFFAudioProcessor wires the processor to the configured binaries.
func NewFFAudioProcessor(ffprobeBinary string, client *ffmpeg.Client) *FFAudioProcessor {
	return &FFAudioProcessor{FFprobeBinary: ffprobeBinary, FFmpeg: client}
}

func (p *FFAudioProcessor) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, p.FFprobeBinary, path)
	if err != nil {
		return 0, err
	}
	return result.DurationSeconds(), nil
}

// Normalize measures the file's mean volume and applies the gain needed to
// reach targetDB. Files already within a decibel of the target pass through.
func (p *FFAudioProcessor) Normalize(ctx context.Context, path string, targetDB float64) (string, error) {
	mean, err := p.FFmpeg.MeasureMeanVolume(ctx, path)
	if err != nil {
		return "", err
	}
	gain := targetDB - mean
	if math.Abs(gain) < gainThresholdDB {
		return path, nil
	}

	ext := filepath.Ext(path)
	output := strings.TrimSuffix(path, ext) + ".norm" + ext
	if err := p.FFmpeg.ApplyGain(ctx, path, gain, output); err != nil {
		return "", err
	}
	return output, nil
}

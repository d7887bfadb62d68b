package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client executes ffmpeg commands. The zero value uses the ffmpeg binary
// found on PATH.
type Client struct {
	Binary string
	FPS    int
}

// New returns a client bound to the given binary path, defaulting to
// "ffmpeg" and 30 fps.
func New(binary string, fps int) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if fps <= 0 {
		fps = 30
	}
	return &Client{Binary: binary, FPS: fps}
}

// SlideSpec describes a single still-image clip to render.
type SlideSpec struct {
	ImagePath string
	// AudioPath is empty for silent sub-image clips.
	AudioPath string
	// Duration is the clip length in seconds, which may exceed the audio.
	// Required when AudioPath is empty.
	Duration float64
	Width    int
	Height   int
	Output   string
}

// letterboxFilter scales the input to fit the target frame without
// distortion and pads the remainder with black.
func letterboxFilter(width, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", width, height, width, height)
}

func (c *Client) renderSlideArgs(spec SlideSpec) ([]string, error) {
	if spec.ImagePath == "" {
		return nil, errors.New("render slide: missing image path")
	}
	if spec.Output == "" {
		return nil, errors.New("render slide: missing output path")
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("render slide: invalid frame %dx%d", spec.Width, spec.Height)
	}
	if spec.AudioPath == "" && spec.Duration <= 0 {
		return nil, errors.New("render slide: silent clip requires a duration")
	}

	args := []string{"-y", "-loop", "1", "-i", spec.ImagePath}
	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath)
	} else {
		// Mono silence keeps every clip carrying an audio stream so the
		// concat demuxer can stream-copy uniformly.
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=mono:sample_rate=44100")
	}
	args = append(args,
		"-vf", letterboxFilter(spec.Width, spec.Height),
		"-r", fmt.Sprintf("%d", c.FPS),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
	)
	if spec.Duration > 0 {
		// -t governs the clip length. The narration is padded with
		// silence so the audio stream reaches the buffered end; -shortest
		// would cut the clip at the narration instead.
		if spec.AudioPath != "" {
			args = append(args, "-af", "apad")
		}
		args = append(args, "-t", formatSeconds(spec.Duration))
	} else {
		args = append(args, "-shortest")
	}
	args = append(args, spec.Output)
	return args, nil
}

// RenderSlide turns a still image plus optional narration track into a
// letterboxed video clip of the requested dimensions.
func (c *Client) RenderSlide(ctx context.Context, spec SlideSpec) error {
	args, err := c.renderSlideArgs(spec)
	if err != nil {
		return err
	}
	return c.run(ctx, args)
}

// Concat stitches the given clips into one file via the concat demuxer
// with stream copy. All clips must share codecs and dimensions, which
// RenderSlide guarantees.
func (c *Client) Concat(ctx context.Context, clipPaths []string, output string) error {
	if len(clipPaths) == 0 {
		return errors.New("concat: no clips")
	}
	if output == "" {
		return errors.New("concat: missing output path")
	}

	listPath := output + ".txt"
	if err := writeConcatList(listPath, clipPaths); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", output}
	return c.run(ctx, args)
}

// TransitionSeconds is the xfade/acrossfade overlap. Each transition shortens
// the joined output by this much relative to the summed clip lengths, and both
// inputs must carry at least this much audio.
const TransitionSeconds = 0.5

// ConcatWithTransition joins two clips with an xfade transition, re-encoding
// both. transition is an xfade transition name such as "fade" or "wipeleft".
func (c *Client) ConcatWithTransition(ctx context.Context, first, second string, firstDuration float64, transition string, output string) error {
	if transition == "" {
		transition = "fade"
	}
	offset := firstDuration - TransitionSeconds
	if offset < 0 {
		offset = 0
	}
	filter := fmt.Sprintf(
		"[0:v][1:v]xfade=transition=%s:duration=%s:offset=%s[v];[0:a][1:a]acrossfade=d=%s[a]",
		transition, formatSeconds(TransitionSeconds), formatSeconds(offset), formatSeconds(TransitionSeconds),
	)
	args := []string{
		"-y", "-i", first, "-i", second,
		"-filter_complex", filter,
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
		output,
	}
	return c.run(ctx, args)
}

// MuxAudio lays an audio track under a video without re-encoding the video
// stream. The output keeps the video's duration.
func (c *Client) MuxAudio(ctx context.Context, videoPath, audioPath, output string) error {
	args := []string{
		"-y", "-i", videoPath, "-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		output,
	}
	return c.run(ctx, args)
}

// ExtractCover writes the first frame of the video as a still image.
func (c *Client) ExtractCover(ctx context.Context, videoPath, output string) error {
	args := []string{"-y", "-i", videoPath, "-vframes", "1", "-q:v", "2", output}
	return c.run(ctx, args)
}

// MeasureMeanVolume runs the volumedetect filter and returns the mean volume
// in dB parsed from ffmpeg's stderr report.
func (c *Client) MeasureMeanVolume(ctx context.Context, audioPath string) (float64, error) {
	args := []string{"-i", audioPath, "-af", "volumedetect", "-f", "null", "-"}
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("volumedetect: %w: %s", err, tail(string(output)))
	}
	mean, ok := parseMeanVolume(string(output))
	if !ok {
		return 0, errors.New("volumedetect: mean_volume not reported")
	}
	return mean, nil
}

// ApplyGain re-encodes the audio file with the given dB adjustment.
func (c *Client) ApplyGain(ctx context.Context, audioPath string, gainDB float64, output string) error {
	args := []string{"-y", "-i", audioPath, "-af", fmt.Sprintf("volume=%sdB", formatSeconds(gainDB)), output}
	return c.run(ctx, args)
}

func (c *Client) binary() string {
	if strings.TrimSpace(c.Binary) == "" {
		return "ffmpeg"
	}
	return c.Binary
}

func (c *Client) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", args[len(args)-1], err, tail(string(output)))
	}
	return nil
}

func writeConcatList(path string, clips []string) error {
	var builder strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return fmt.Errorf("concat list: %w", err)
		}
		fmt.Fprintf(&builder, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("concat list: %w", err)
	}
	return nil
}

func parseMeanVolume(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "mean_volume:")
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len("mean_volume:"):])
		rest = strings.TrimSuffix(rest, "dB")
		rest = strings.TrimSpace(rest)
		var value float64
		if _, err := fmt.Sscanf(rest, "%f", &value); err == nil {
			return value, true
		}
	}
	return 0, false
}

func formatSeconds(value float64) string {
	formatted := fmt.Sprintf("%.3f", value)
	formatted = strings.TrimRight(formatted, "0")
	return strings.TrimSuffix(formatted, ".")
}

func tail(output string) string {
	trimmed := strings.TrimSpace(output)
	const limit = 400
	if len(trimmed) > limit {
		return "..." + trimmed[len(trimmed)-limit:]
	}
	return trimmed
}

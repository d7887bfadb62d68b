package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSlideArgsWithAudio(t *testing.T) {
	client := New("", 30)
	args, err := client.renderSlideArgs(SlideSpec{
		ImagePath: "slide.png",
		AudioPath: "voice.mp3",
		Duration:  6.5,
		Width:     1920,
		Height:    1080,
		Output:    "clip.mp4",
	})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-loop 1 -i slide.png")
	require.Contains(t, joined, "-i voice.mp3")
	require.Contains(t, joined, "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1")
	require.Contains(t, joined, "-t 6.5")
	require.Contains(t, joined, "-af apad", "narration is padded to the buffered clip length")
	require.NotContains(t, args, "-shortest", "-shortest would end the clip at the narration, dropping the buffer")
	require.Equal(t, "clip.mp4", args[len(args)-1])
}

func TestRenderSlideArgsSilentUsesAnullsrc(t *testing.T) {
	client := New("", 30)
	args, err := client.renderSlideArgs(SlideSpec{
		ImagePath: "slide.png",
		Duration:  2.0,
		Width:     1080,
		Height:    1920,
		Output:    "clip.mp4",
	})
	require.NoError(t, err)
	joined := strings.Join(args, " ")
	require.Contains(t, joined, "anullsrc")
	require.Contains(t, joined, "-t 2")
	require.NotContains(t, joined, "apad", "generated silence needs no padding")
}

func TestRenderSlideArgsValidation(t *testing.T) {
	client := New("", 30)

	_, err := client.renderSlideArgs(SlideSpec{Output: "o.mp4", Width: 100, Height: 100})
	require.Error(t, err)

	_, err = client.renderSlideArgs(SlideSpec{ImagePath: "i.png", Output: "o.mp4", Width: 100, Height: 100})
	require.Error(t, err, "silent clip without duration must fail")
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "list.txt")
	require.NoError(t, writeConcatList(listPath, []string{filepath.Join(dir, "it's.mp4")}))

	content, err := os.ReadFile(listPath)
	require.NoError(t, err)
	require.Contains(t, string(content), `it'\''s.mp4`)
	require.True(t, strings.HasPrefix(string(content), "file '"))
}

func TestParseMeanVolume(t *testing.T) {
	output := "[Parsed_volumedetect_0 @ 0x55] n_samples: 180224\n" +
		"[Parsed_volumedetect_0 @ 0x55] mean_volume: -23.4 dB\n" +
		"[Parsed_volumedetect_0 @ 0x55] max_volume: -4.0 dB\n"
	value, ok := parseMeanVolume(output)
	require.True(t, ok)
	require.InDelta(t, -23.4, value, 0.001)
}

func TestParseMeanVolumeMissing(t *testing.T) {
	_, ok := parseMeanVolume("no report here")
	require.False(t, ok)
}

func TestFormatSeconds(t *testing.T) {
	require.Equal(t, "6.5", formatSeconds(6.5))
	require.Equal(t, "2", formatSeconds(2.0))
	require.Equal(t, "0.333", formatSeconds(1.0/3.0))
}

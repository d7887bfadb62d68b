// Package ffmpeg wraps the ffmpeg binary for slideshow composition: it
// renders still images into letterboxed clips, stitches clips together,
// extracts cover frames, and normalizes narration loudness.
package ffmpeg

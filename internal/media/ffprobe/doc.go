// Package ffprobe shells out to ffprobe to measure media files: decoded
// audio durations, image and video dimensions, stream layout.
package ffprobe

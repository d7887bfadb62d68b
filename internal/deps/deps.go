// Package deps reports the availability of the external binaries the
// composition pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reelsmith/internal/config"
)

// Requirement defines an external dependency reelsmith relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured pipeline will invoke.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	ffprobe := "ffprobe"
	if cfg != nil {
		if v := strings.TrimSpace(cfg.Compose.FFmpegBinary); v != "" {
			ffmpeg = v
		}
		if v := strings.TrimSpace(cfg.Compose.FFprobeBinary); v != "" {
			ffprobe = v
		}
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Renders segment clips and the final video"},
		{Name: "FFprobe", Command: ffprobe, Description: "Measures audio duration and image dimensions"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

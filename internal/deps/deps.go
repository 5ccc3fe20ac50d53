// Package deps reports whether the external binaries the converter shells
// out to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/timmy/producer-tools/internal/config"
)

// Requirement defines an external binary the service relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the configuration refers to.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "ffmpeg", Command: cfg.FFmpeg.Binary, Description: "audio transcoding"},
		{Name: "yt-dlp", Command: cfg.Fetcher.Binary, Description: "media extraction"},
	}
	// ffprobe only feeds the builtin analyzer, which degrades without it
	reqs = append(reqs, Requirement{
		Name:        "ffprobe",
		Command:     cfg.FFmpeg.ProbeBinary,
		Description: "duration probing for tempo and key analysis",
		Optional:    true,
	})
	return reqs
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
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Head returns the commit hash of HEAD for the repository at dir. The hash
// anchors embedding staleness for the indexing run.
func Head(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Short truncates a commit hash for display.
func Short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

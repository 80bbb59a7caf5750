package solver

import (
	"os/exec"
	"strings"
)

// ToolStatus reports the availability of one external binary.
type ToolStatus struct {
	Available bool
	Version   string
	Path      string
	Error     error
}

// RequiredTools lists the binaries the pipeline shells out to.
func RequiredTools() []string {
	return []string{"solve-field", "wcsinfo", "funpack", "fpack"}
}

// CheckTool verifies a tool is present and captures a version line
// where the tool offers one.
func CheckTool(name string) ToolStatus {
	path, err := exec.LookPath(name)
	if err != nil {
		return ToolStatus{Available: false, Error: err}
	}

	var versionArgs []string
	switch name {
	case "solve-field":
		versionArgs = []string{"--version"}
	case "funpack", "fpack":
		versionArgs = []string{"-V"}
	default:
		// wcsinfo has no version flag; existence is enough.
		return ToolStatus{Available: true, Path: path}
	}

	cmd := exec.Command(name, versionArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil && len(out) == 0 {
		return ToolStatus{Available: false, Path: path, Error: err}
	}
	return ToolStatus{Available: true, Path: path, Version: extractVersion(string(out))}
}

// CheckAll probes every required tool.
func CheckAll() map[string]ToolStatus {
	status := make(map[string]ToolStatus)
	for _, tool := range RequiredTools() {
		status[tool] = CheckTool(tool)
	}
	return status
}

func extractVersion(output string) string {
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(line), "version") {
			return line
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0])
	}
	return "unknown"
}

package toolchain

import (
	"bytes"
	"context"
	"strings"
)

// VersionArgs lists the version flag for each known tool name.
var VersionArgs = map[string][]string{
	"basecaller": {"--version"},
	"samtools":   {"--version"},
	"pigz":       {"--version"},
	"gzip":       {"--version"},
	"cutadapt":   {"--version"},
}

// ToolVersion returns the first non-empty line a tool prints for its
// version flag, or "unavailable". Version capture is best effort.
func ToolVersion(ctx context.Context, r Runner, name, path string) string {
	args, ok := VersionArgs[name]
	if !ok {
		args = []string{"--version"}
	}
	var out bytes.Buffer
	res, err := r.Run(ctx, Invocation{Name: name + "-version", Path: path, Args: args, Stdout: &out})
	if err != nil {
		return "unavailable"
	}
	// Some tools print their version to stderr.
	for _, text := range []string{out.String(), string(res.Stderr)} {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return "unavailable"
}

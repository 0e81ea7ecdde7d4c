// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	namePattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)
	separatorPattern = regexp.MustCompile(`[-_.]+`)
	sdistVersion     = regexp.MustCompile(`-[0-9]`)
)

// ArtifactExtensions are the vendored artifact file extensions.
var ArtifactExtensions = []string{".whl", ".tar.gz", ".zip"}

// ReadRequirements returns the requirement specifiers of a requirements file.
// Comments, option lines and hash continuations are dropped.
func ReadRequirements(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading requirements %s: %w", path, err)
	}
	return ParseRequirements(data), nil
}

// ParseRequirements extracts requirement specifiers from requirements-file content.
func ParseRequirements(data []byte) []string {
	var reqs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if spec := requirementFromLine(sc.Text()); spec != "" {
			reqs = append(reqs, spec)
		}
	}
	return reqs
}

func requirementFromLine(line string) string {
	if idx := strings.Index(line, " #"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
		return ""
	}
	if idx := strings.Index(line, " --"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(strings.TrimSuffix(line, "\\"))
	return line
}

// FilterRequirements drops every requirement entry of a requirements file
// whose name is in exclude, together with its continuation and "# via" lines.
func FilterRequirements(data []byte, exclude map[string]bool) []byte {
	if len(exclude) == 0 {
		return data
	}

	var out bytes.Buffer
	dropping := false
	for _, line := range strings.SplitAfter(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		startsEntry := trimmed != "" && line[0] != ' ' && line[0] != '\t' && !strings.HasPrefix(trimmed, "#")
		if startsEntry {
			dropping = exclude[RequirementName(requirementFromLine(line))]
		} else if trimmed == "" || (strings.HasPrefix(trimmed, "#") && line[0] == '#') {
			dropping = false
		}
		if !dropping {
			out.WriteString(line)
		}
	}
	return out.Bytes()
}

// RequirementName returns the normalized project name of a requirement
// specifier, e.g. "Requests[socks]>=2.0" -> "requests".
func RequirementName(spec string) string {
	return NormalizeName(namePattern.FindString(strings.TrimSpace(spec)))
}

// NormalizeName normalizes a project name: lowercase, with runs of
// '-', '_' and '.' collapsed to '-'.
func NormalizeName(name string) string {
	return separatorPattern.ReplaceAllString(strings.ToLower(name), "-")
}

// IsArtifact reports whether file is a vendored wheel or source archive.
func IsArtifact(file string) bool {
	for _, ext := range ArtifactExtensions {
		if strings.HasSuffix(file, ext) {
			return true
		}
	}
	return false
}

// ArtifactRequirementName returns the normalized project name of a wheel or
// source archive file name, e.g. "python_dateutil-2.9.0-py2.py3-none-any.whl"
// -> "python-dateutil". It returns "" for other files.
func ArtifactRequirementName(file string) string {
	switch {
	case strings.HasSuffix(file, ".whl"):
		name, _, _ := strings.Cut(file, "-")
		return NormalizeName(name)
	case strings.HasSuffix(file, ".tar.gz"), strings.HasSuffix(file, ".zip"):
		base := strings.TrimSuffix(strings.TrimSuffix(file, ".tar.gz"), ".zip")
		loc := sdistVersion.FindStringIndex(base)
		if loc == nil {
			return NormalizeName(base)
		}
		return NormalizeName(base[:loc[0]])
	default:
		return ""
	}
}

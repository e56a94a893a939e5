// Package semver checks native runtime versions against a supported range.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

var (
	majorOnlyRegex = regexp.MustCompile(`^\d+$`)
	leadingVersion = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})((?:\.\d+)*)(.*)$`)
)

// Normalize turns a native SDK version into SemVer. Native versions may carry
// a fourth numeric component ("4.16.2.1"); it is kept as build metadata.
func Normalize(version string) (string, error) {
	v := strings.TrimSpace(version)
	m := leadingVersion.FindStringSubmatch(v)
	if m == nil {
		return "", fmt.Errorf("%s - invalid version %q", logPrefix, version)
	}
	core, extra, rest := m[1], strings.TrimPrefix(m[2], "."), m[3]
	if rest != "" && !strings.HasPrefix(rest, "-") && !strings.HasPrefix(rest, "+") {
		return "", fmt.Errorf("%s - invalid version %q", logPrefix, version)
	}
	for strings.Count(core, ".") < 2 {
		core += ".0"
	}
	out := core + rest
	if extra != "" {
		if strings.Contains(rest, "+") {
			out += "." + extra
		} else {
			out += "+" + extra
		}
	}
	if _, err := masterminds.StrictNewVersion(out); err != nil {
		return "", fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}
	return out, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "4").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// SatisfiesRange checks if a version satisfies a range. An empty range
// accepts every valid version.
func SatisfiesRange(version, rangeStr string) bool {
	c, err := Check(version, rangeStr)
	return err == nil && c.Compatible
}

// Compatibility is the result of checking a runtime version.
type Compatibility struct {
	Version    string `json:"version"`
	Normalized string `json:"normalized"`
	Constraint string `json:"constraint"`
	Compatible bool   `json:"compatible"`
	Reason     string `json:"reason,omitempty"`
}

// Check evaluates version against constraint. Errors are returned only for
// unparseable input; an unsatisfied constraint yields Compatible=false.
func Check(version, constraint string) (*Compatibility, error) {
	normalized, err := Normalize(version)
	if err != nil {
		return nil, err
	}
	sv, err := masterminds.NewVersion(normalized)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}

	result := &Compatibility{Version: version, Normalized: normalized, Constraint: constraint}

	switch {
	case constraint == "":
		result.Compatible = true
	case IsMajorOnly(constraint):
		result.Compatible = int(sv.Major()) == ExtractMajorFromRange(constraint)
	default:
		c, err := masterminds.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, constraint, err)
		}
		ok, errs := c.Validate(sv)
		result.Compatible = ok
		if !ok && len(errs) > 0 {
			reasons := make([]string, len(errs))
			for i, e := range errs {
				reasons[i] = e.Error()
			}
			result.Reason = strings.Join(reasons, "; ")
		}
	}

	if !result.Compatible && result.Reason == "" {
		result.Reason = fmt.Sprintf("%s does not satisfy %s", version, constraint)
	}
	return result, nil
}

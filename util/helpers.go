// Package util provides utility functions for version normalization, Package URLs (PURLs),
// end-of-life date handling and vulnerability range checks.
//
//revive:disable-next-line:var-naming
package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/package-url/packageurl-go"
)

// ParsedVersion holds parsed semantic version components
type ParsedVersion struct {
	Major *int
	Minor *int
	Patch *int
}

// ParseSemanticVersion parses a version string into numeric components
// Returns nil values for components that cannot be parsed
func ParseSemanticVersion(version string) *ParsedVersion {
	version = NormalizeVersion(version)
	if version == "" {
		return &ParsedVersion{}
	}

	// Strip "go" prefix for Go toolchain versions (e.g., "go1.22.2")
	cleanVersion := strings.TrimPrefix(version, "go")

	if v, err := semver.NewVersion(cleanVersion); err == nil {
		major := int(v.Major())
		minor := int(v.Minor())
		patch := int(v.Patch())
		return &ParsedVersion{Major: &major, Minor: &minor, Patch: &patch}
	}

	// Fallback for versions like "1.2", "2" or "17.0.1_12"
	parts := strings.Split(cleanVersion, ".")
	result := &ParsedVersion{}
	nums := []**int{&result.Major, &result.Minor, &result.Patch}

	for i := 0; i < len(parts) && i < len(nums); i++ {
		field := strings.FieldsFunc(parts[i], func(r rune) bool {
			return r == '-' || r == '+' || r == '_'
		})
		if len(field) == 0 {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(field[0]))
		if err != nil {
			break
		}
		*nums[i] = &n
	}

	return result
}

// NormalizeVersion trims whitespace and a single leading "v" that precedes a digit.
func NormalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	if len(version) > 1 && (version[0] == 'v' || version[0] == 'V') && version[1] >= '0' && version[1] <= '9' {
		return version[1:]
	}
	return version
}

// SameVersion compares two version strings after normalization.
func SameVersion(a, b string) bool {
	return NormalizeVersion(a) == NormalizeVersion(b)
}

// LeadingComponent returns the first numeric component of a version.
func LeadingComponent(version string) (int, bool) {
	parsed := ParseSemanticVersion(version)
	if parsed.Major == nil {
		return 0, false
	}
	return *parsed.Major, true
}

// MajorIncreased reports whether the leading numeric component grew between two versions.
// Unparseable versions never count as an increase.
func MajorIncreased(oldVersion, newVersion string) bool {
	o, ok := LeadingComponent(oldVersion)
	if !ok {
		return false
	}
	n, ok := LeadingComponent(newVersion)
	if !ok {
		return false
	}
	return n > o
}

var versionPrefixPattern = regexp.MustCompile(`^.*?-v(\d+)`)

// CleanVersion removes branch prefixes from version strings
// Examples:
//   - "main-v12.0.1376-g7ac6f3" -> "12.0.1376-g7ac6f3"
//   - "release-v2.3.4" -> "2.3.4"
//   - "v1.2.3" -> "v1.2.3" (unchanged)
func CleanVersion(version string) string {
	if matches := versionPrefixPattern.FindStringSubmatch(version); len(matches) > 1 {
		return versionPrefixPattern.ReplaceAllString(version, matches[1])
	}
	return version
}

// LatestSemver returns the highest candidate that parses as semver and satisfies the optional
// constraint. Prereleases are skipped unless includePrerelease is set. The candidate is
// returned as it was given, so callers keep the catalog's own spelling ("v1.2.3" stays as is).
func LatestSemver(candidates []string, constraint string, includePrerelease bool) (string, error) {
	var c *semver.Constraints
	if strings.TrimSpace(constraint) != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return "", fmt.Errorf("invalid version constraint %q: %w", constraint, err)
		}
		c = parsed
	}

	var best *semver.Version
	bestRaw := ""
	for _, raw := range candidates {
		v, err := semver.NewVersion(CleanVersion(raw))
		if err != nil {
			continue
		}
		if v.Prerelease() != "" && !includePrerelease {
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw, nil
}

// ParseEOL interprets an end-of-life value. The catalog may supply a date
// (YYYY-MM-DD or RFC3339) or a boolean flag ("true"/"false").
// sentinel reports a boolean "true"; date is zero when no date was supplied.
func ParseEOL(eol string) (date time.Time, sentinel bool, ok bool) {
	eol = strings.TrimSpace(eol)
	switch strings.ToLower(eol) {
	case "":
		return time.Time{}, false, false
	case "true":
		return time.Time{}, true, true
	case "false":
		return time.Time{}, false, true
	}
	if t, err := time.Parse(time.DateOnly, eol); err == nil {
		return t, false, true
	}
	if t, err := time.Parse(time.RFC3339, eol); err == nil {
		return t, false, true
	}
	return time.Time{}, false, false
}

// EOLPassed reports whether an end-of-life value resolves to a past date or the "true" flag.
func EOLPassed(eol string, now time.Time) bool {
	date, sentinel, ok := ParseEOL(eol)
	if !ok {
		return false
	}
	if sentinel {
		return true
	}
	return !date.IsZero() && date.Before(now)
}

// GetBasePURL removes version, qualifiers and subpath from a PURL.
// Example: pkg:npm/%40angular/core@17.0.1 -> pkg:npm/%40angular/core
func GetBasePURL(purlStr string) (string, error) {
	parsed, err := packageurl.FromString(purlStr)
	if err != nil {
		return "", err
	}

	base := packageurl.PackageURL{
		Type:      parsed.Type,
		Namespace: parsed.Namespace,
		Name:      parsed.Name,
	}

	return base.ToString(), nil
}

// ParsePURL parses a PURL string and returns the parsed PackageURL
func ParsePURL(purlStr string) (*packageurl.PackageURL, error) {
	parsed, err := packageurl.FromString(purlStr)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// PackageName joins a PURL namespace and name the way the package's own registry spells it,
// e.g. "@angular/core" for npm and "library/nginx" for docker.
func PackageName(p *packageurl.PackageURL) string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

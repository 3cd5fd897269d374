// Package util provides utility functions for the backend.
//
//revive:disable-next-line:var-naming
package util

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	npm "github.com/aquasecurity/go-npm-version/pkg"
	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/google/osv-scanner/pkg/models"
)

// compareFunc orders two versions of one ecosystem.
type compareFunc func(a, b string) int

// comparatorFor picks the ecosystem's version grammar. Versions that the grammar
// cannot parse fall back to plain string ordering.
func comparatorFor(ecosystem string) compareFunc {
	switch strings.ToLower(ecosystem) {
	case "npm":
		return func(a, b string) int {
			va, errA := npm.NewVersion(a)
			vb, errB := npm.NewVersion(b)
			if errA != nil || errB != nil {
				return strings.Compare(a, b)
			}
			switch {
			case va.LessThan(vb):
				return -1
			case va.GreaterThan(vb):
				return 1
			}
			return 0
		}
	case "pypi":
		return func(a, b string) int {
			va, errA := pep440.Parse(a)
			vb, errB := pep440.Parse(b)
			if errA != nil || errB != nil {
				return strings.Compare(a, b)
			}
			return va.Compare(vb)
		}
	default:
		return func(a, b string) int {
			va, errA := semver.NewVersion(a)
			vb, errB := semver.NewVersion(b)
			if errA != nil || errB != nil {
				return strings.Compare(a, b)
			}
			return va.Compare(vb)
		}
	}
}

// IsVersionAffectedAny checks if a version is affected by any of the provided affected ranges
func IsVersionAffectedAny(version string, allAffected []models.Affected) bool {
	for _, affected := range allAffected {
		if IsVersionAffected(version, affected) {
			return true
		}
	}
	return false
}

// IsVersionAffected checks if a version is affected by OSV ranges
// Uses ecosystem-specific version parsers for accurate comparison
func IsVersionAffected(version string, affected models.Affected) bool {
	version = NormalizeVersion(version)
	if version == "" {
		return false
	}

	for _, v := range affected.Versions {
		if NormalizeVersion(v) == version {
			return true
		}
	}

	cmp := comparatorFor(string(affected.Package.Ecosystem))
	for _, vrange := range affected.Ranges {
		if vrange.Type != models.RangeEcosystem && vrange.Type != models.RangeSemVer {
			continue
		}
		if isVersionInRange(version, vrange, cmp) {
			return true
		}
	}

	return false
}

// isVersionInRange requires both a lower and an upper bound to avoid false positives.
// An introduced value of "0" means the range starts at the beginning of history.
func isVersionInRange(version string, vrange models.Range, cmp compareFunc) bool {
	hasLower, hasUpper := false, false
	for _, event := range vrange.Events {
		if event.Introduced != "" {
			hasLower = true
		}
		if event.Fixed != "" || event.LastAffected != "" {
			hasUpper = true
		}
	}
	if !hasLower || !hasUpper {
		return false
	}

	for _, event := range vrange.Events {
		if event.Introduced != "" && event.Introduced != "0" && cmp(version, event.Introduced) < 0 {
			return false
		}
		if event.Fixed != "" && cmp(version, event.Fixed) >= 0 {
			return false
		}
		if event.LastAffected != "" && cmp(version, event.LastAffected) > 0 {
			return false
		}
	}
	return true
}

package checker

import (
	"strings"
	"time"

	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
)

// Classify derives an item's status from its versions and end-of-life value.
// It holds no state: a past EOL that is later moved into the future stops classifying
// as end_of_life on the next check.
//
//  1. eol is a past date or the "true" flag: end_of_life
//  2. either version unknown, or both equal ignoring a leading "v": up_to_date
//  3. otherwise: outdated
func Classify(current, latest *string, eol string, now time.Time) model.Status {
	if util.EOLPassed(eol, now) {
		return model.StatusEndOfLife
	}
	if current == nil || latest == nil {
		return model.StatusUpToDate
	}
	if strings.TrimSpace(*current) == "" || strings.TrimSpace(*latest) == "" {
		return model.StatusUpToDate
	}
	if util.SameVersion(*current, *latest) {
		return model.StatusUpToDate
	}
	return model.StatusOutdated
}

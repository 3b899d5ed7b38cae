package migrator

import (
	"regexp"
	"strings"
)

// BaseVersion is the sentinel history entry that marks a database with no
// migrations applied. It's never applied or reverted.
const BaseVersion = "m000000_000000_base"

var (
	unitNameRx = regexp.MustCompile(`^m(\d{6}_\d{6})_\w+$`)
	targetRx   = regexp.MustCompile(`^m?(\d{6}_\d{6})(_.*)?$`)
	unitNameOK = regexp.MustCompile(`^\w+$`)
)

// IsVersion reports whether v is a complete unit version, such as
// m101129_185401_create_user_table.
func IsVersion(v string) bool {
	return unitNameRx.MatchString(v)
}

// versionKey returns the yymmdd_hhmmss portion of a version, which is what
// identifies a unit in the history.
func versionKey(v string) string {
	if m := unitNameRx.FindStringSubmatch(v); m != nil {
		return m[1]
	}
	if len(v) >= 14 {
		return v[1:14]
	}
	return ""
}

// ParseVersion normalizes a version target such as "101129_185401" or
// "m101129_185401_create_user_table" into its canonical "m101129_185401" form.
func ParseVersion(target string) (string, bool) {
	m := targetRx.FindStringSubmatch(target)
	if m == nil {
		return "", false
	}
	return "m" + m[1], true
}

// matchesVersion reports whether the unit version v is identified by the
// canonical version prefix.
func matchesVersion(v, prefix string) bool {
	return strings.HasPrefix(v, prefix+"_")
}

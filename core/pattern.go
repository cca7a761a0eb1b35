package core

import "regexp"

// NoKeyPattern is the sentinel pattern for key-less commands.
const NoKeyPattern = "NO_KEY"

var (
	patternUUID      = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	patternUserIDMid = regexp.MustCompile(`:\d{10,}:`)
	patternUserIDEnd = regexp.MustCompile(`:\d{10,}$`)
	patternEpoch     = regexp.MustCompile(`\d{10,13}`)
	patternDate      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	patternHash      = regexp.MustCompile(`(?i)\b[0-9a-f]{32,}\b`)
	patternIP        = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
)

// ExtractKeyPattern generalizes a literal key so that structurally similar
// keys group together. Substitutions are textual and cumulative: each rule
// runs against the already-substituted string, so a value consumed by an
// earlier rule cannot match a later one. The colon-bounded user-id rules run
// before the bare epoch rule, otherwise a `user:<13 digits>:session` key
// would collapse into `{TIMESTAMP}` and user ids could never be told apart
// from loose timestamps.
func ExtractKeyPattern(key string) string {
	if key == "" {
		return NoKeyPattern
	}
	key = patternUUID.ReplaceAllString(key, "{UUID}")
	key = patternUserIDMid.ReplaceAllString(key, ":{USERID}:")
	key = patternUserIDEnd.ReplaceAllString(key, ":{USERID}")
	key = patternEpoch.ReplaceAllString(key, "{TIMESTAMP}")
	key = patternDate.ReplaceAllString(key, "{DATE}")
	key = patternHash.ReplaceAllString(key, "{HASH}")
	key = patternIP.ReplaceAllString(key, "{IP}")
	return key
}

package identity

import (
	"regexp"
	"strings"
)

var (
	envSuffixRe     = regexp.MustCompile(`(?i)-(prod|production|staging|stage|dev|development|qa|uat|test)$`)
	versionSuffixRe = regexp.MustCompile(`(?i)-?v\d+$`)
	javaPrefixRe    = regexp.MustCompile(`^(com|org|io|net)\.[a-z0-9.]+\.`)
	typeAffixRe     = regexp.MustCompile(`(?i)^(service|svc|api|srv|app)[-_]|[-_](service|svc|api|srv|app)$`)
	nonAlnumRe      = regexp.MustCompile(`[._]+`)
	repeatedDashRe  = regexp.MustCompile(`-{2,}`)
)

// Normalize applies the canonical-name normalization rules of the
// identity resolution ladder, in order: strip environment suffixes, strip
// version suffixes, strip Java-style package prefixes, strip type
// affixes, lowercase, fold separators to `-`, collapse repeats, and trim
// leading/trailing dashes. It is idempotent: Normalize(Normalize(x)) ==
// Normalize(x).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = envSuffixRe.ReplaceAllString(s, "")
	s = versionSuffixRe.ReplaceAllString(s, "")
	s = javaPrefixRe.ReplaceAllString(s, "")
	s = typeAffixRe.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = repeatedDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	return s
}

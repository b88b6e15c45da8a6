package rules

import (
	"strings"
	"unicode"

	"comment-moderator/models"
)

// Normalize lowercases s and collapses every run of whitespace or control
// characters into a single space, trimming both ends.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	return strings.Join(fields, " ")
}

// Match returns the first rule, in the given order, with a trigger word that
// occurs in comment. comment must already be normalized. A trigger of "*"
// matches anything; blank triggers never match.
func Match(comment string, rules []models.ReplyRule) (*models.ReplyRule, bool) {
	for i := range rules {
		if ruleMatches(comment, rules[i]) {
			return &rules[i], true
		}
	}
	return nil, false
}

// MatchingTrigger reports which trigger of rule fired, "" if none did.
func MatchingTrigger(comment string, rule models.ReplyRule) string {
	for _, raw := range rule.Triggers() {
		word := strings.TrimSpace(raw)
		if word == models.WildcardTrigger {
			return word
		}
		needle := Normalize(word)
		if needle == "" {
			continue
		}
		if strings.Contains(comment, needle) {
			return word
		}
	}
	return ""
}

func ruleMatches(comment string, rule models.ReplyRule) bool {
	return MatchingTrigger(comment, rule) != ""
}

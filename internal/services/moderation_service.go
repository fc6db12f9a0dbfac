package services

import (
	"regexp"
	"strings"
)

var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
	"scam", "scammer", "phishing", "malware",
}

const (
	RejectLanguage = "inappropriate_language"
	RejectURL      = "url_not_allowed"
	RejectSpam     = "spam_detected"
	RejectCaps     = "excessive_caps"
)

// ModerationService screens user-written text. Reviews get the full filter;
// messages and listings only the banned-word check, since they legitimately
// carry links and contact details.
type ModerationService struct {
	bannedWordRegexps []*regexp.Regexp
	urlPattern        *regexp.Regexp
	allCapsPattern    *regexp.Regexp
}

func NewModerationService() *ModerationService {
	ms := &ModerationService{
		bannedWordRegexps: make([]*regexp.Regexp, 0, len(BannedWords)),
	}
	for _, word := range BannedWords {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err == nil {
			ms.bannedWordRegexps = append(ms.bannedWordRegexps, re)
		}
	}
	ms.urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+\.\S+)`)
	ms.allCapsPattern = regexp.MustCompile(`[A-Z]{5,}`)
	return ms
}

// FilterContent reports whether text is acceptable, and the rejection reason
// when it is not.
func (ms *ModerationService) FilterContent(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return true, ""
	}
	if ms.ContainsProfanity(text) {
		return false, RejectLanguage
	}
	if ms.urlPattern.MatchString(text) {
		return false, RejectURL
	}
	if hasRepeatedRun(text) {
		return false, RejectSpam
	}
	if len(ms.allCapsPattern.FindAllString(text, -1)) > 2 {
		return false, RejectCaps
	}
	return true, ""
}

func (ms *ModerationService) ContainsProfanity(text string) bool {
	for _, re := range ms.bannedWordRegexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (ms *ModerationService) GetRejectionMessage(reason string) string {
	messages := map[string]string{
		RejectLanguage: "Your text contains inappropriate language.",
		RejectURL:      "URLs and web links are not allowed in reviews.",
		RejectSpam:     "Your text appears to be spam.",
		RejectCaps:     "Please avoid using excessive capital letters.",
	}
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "Your text does not meet our content guidelines."
}

// hasRepeatedRun reports five or more identical letters or punctuation marks
// in a row. Go's regexp has no backreferences.
func hasRepeatedRun(text string) bool {
	run := 1
	var prev rune
	for i, r := range strings.ToLower(text) {
		if i > 0 && r == prev && (r >= 'a' && r <= 'z' || r == '!' || r == '?' || r == '.') {
			run++
			if run >= 5 {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

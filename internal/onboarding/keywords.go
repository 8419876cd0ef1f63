package onboarding

import (
	"regexp"
	"strings"
)

// Keyword sets accept both Thai and English forms. Matching is on the
// trimmed, lowercased message body.
var (
	startKeywords = map[string]struct{}{
		"สมัคร":     {},
		"ลงทะเบียน": {},
		"เปิดร้าน":  {},
		"register":  {},
		"signup":    {},
		"start":     {},
	}
	cancelKeywords = map[string]struct{}{
		"ยกเลิก": {},
		"cancel": {},
		"stop":   {},
	}
	confirmKeywords = map[string]struct{}{
		"ยืนยัน":  {},
		"ตกลง":    {},
		"confirm": {},
		"ok":      {},
	}
	skipKeywords = map[string]struct{}{
		"ข้าม": {},
		"skip": {},
		"-":    {},
	}
)

func IsStartKeyword(text string) bool   { return matchKeyword(text, startKeywords) }
func IsCancelKeyword(text string) bool  { return matchKeyword(text, cancelKeywords) }
func IsConfirmKeyword(text string) bool { return matchKeyword(text, confirmKeywords) }
func IsSkipKeyword(text string) bool    { return matchKeyword(text, skipKeywords) }

func matchKeyword(text string, set map[string]struct{}) bool {
	_, ok := set[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

var phoneDigits = regexp.MustCompile(`\d+`)

// NormalizePhone canonicalizes Thai phone numbers: strips separators,
// rewrites the 66 country prefix to a leading zero, and accepts 9 or
// 10 digit results. Returns empty when the input is not a phone.
func NormalizePhone(raw string) string {
	digits := strings.Join(phoneDigits.FindAllString(raw, -1), "")
	if strings.HasPrefix(digits, "66") && len(digits) >= 11 {
		digits = "0" + digits[2:]
	}
	if len(digits) < 9 || len(digits) > 10 {
		return ""
	}
	return digits
}

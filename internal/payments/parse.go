package payments

import (
	"regexp"
	"strconv"
	"strings"
)

// Owner decision codes. The verb prefix is optional chatter; the code
// is what decides.
const (
	CodeConfirm = "1010"
	CodeReject  = "0011"
)

var (
	amountPattern = regexp.MustCompile(`(\d+(?:\.\d{1,2})?)`)
	codePattern   = regexp.MustCompile(`^(?:(?:ยืนยัน|ตกลง|confirm|ok|approve|ปฏิเสธ|ไม่ใช่|ปัดตก|ยกเลิก|reject|no)\s+)?(1010|0011)$`)
	phonePattern  = regexp.MustCompile(`^0\d{8,9}$`)
)

// ParseAmount extracts the first money amount from free text. Commas
// are thousand separators and stripped before matching. Currency is
// guessed from symbols and words, defaulting to THB.
func ParseAmount(text string) (amount float64, currency string, ok bool) {
	cleaned := strings.ReplaceAll(text, ",", "")
	match := amountPattern.FindString(cleaned)
	if match == "" {
		return 0, "", false
	}
	amount, err := strconv.ParseFloat(match, 64)
	if err != nil || amount <= 0 {
		return 0, "", false
	}
	return amount, guessCurrency(text), true
}

func guessCurrency(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(text, "$") || strings.Contains(lower, "usd"):
		return "USD"
	case strings.Contains(text, "€") || strings.Contains(lower, "eur"):
		return "EUR"
	case strings.Contains(text, "฿") || strings.Contains(text, "บาท") || strings.Contains(lower, "thb"):
		return "THB"
	default:
		return "THB"
	}
}

var claimWords = []string{
	"โอนแล้ว", "โอนเงิน", "โอนให้", "โอน",
	"จ่ายแล้ว", "จ่ายเงิน", "ชำระแล้ว", "ชำระ",
	"pay", "paid", "transferred", "transfer",
}

// IsClaimText reports whether a customer message reads as a payment
// claim: a transfer verb together with an amount.
func IsClaimText(text string) bool {
	lower := strings.ToLower(text)
	if _, _, ok := ParseAmount(text); !ok {
		return false
	}
	for _, w := range claimWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// ParseCode recognizes an owner decision message: an optional
// confirm/reject verb followed by the fixed code, or the bare code.
func ParseCode(text string) (code string, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	m := codePattern.FindStringSubmatch(normalized)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsBareAmount reports whether the text is nothing but an amount,
// optionally with a currency marker. Owners quote prices this way.
// A leading-zero digit run shaped like a local phone number is not an
// amount; that text belongs to the profile heuristics.
func IsBareAmount(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(text, ",", "")))
	for _, marker := range []string{"฿", "$", "€", "บาท", "thb", "usd", "eur"} {
		cleaned = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(cleaned, marker), marker))
	}
	if cleaned == "" || phonePattern.MatchString(cleaned) {
		return false
	}
	return amountPattern.FindString(cleaned) == cleaned
}

package phone

import (
	"strings"
	"unicode"
)

const (
	shortDigitCount = 4
	keepShortDigits = 1
	keepLongDigits  = 4
)

// Mask hides a phone number for logs while preserving formatting symbols.
// It keeps the last digit of numbers with up to 4 digits and the last 4
// otherwise:
//
//	"+16502530000" -> "+*******0000"
//	"+1234"        -> "+***4"
//	"1"            -> "1"
//	"AB-CD"        -> "**-*D"
func Mask(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	runes := []rune(number)
	if !maskDigits(runes) {
		return maskSignificant(runes)
	}
	return string(runes)
}

func maskDigits(runes []rune) bool {
	total := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			total++
		}
	}
	if total == 0 {
		return false
	}

	keep := keepLongDigits
	if total <= shortDigitCount {
		keep = keepShortDigits
	}
	seen := 0
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsDigit(runes[i]) {
			seen++
			if seen > keep {
				runes[i] = '*'
			}
		}
	}
	return true
}

// maskSignificant masks every letter except the last one.
func maskSignificant(runes []rune) string {
	seen := 0
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsLetter(runes[i]) {
			seen++
			if seen > 1 {
				runes[i] = '*'
			}
		}
	}
	return string(runes)
}

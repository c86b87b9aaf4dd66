// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidIIN возвращается, если ИИН имеет неверный формат.
var ErrInvalidIIN = errors.New("invalid IIN")

const (
	iinLength            = 12
	applicationPrefix    = "APP"
	applicationMinDigits = 6
)

// IsValidIIN проверяет, что ИИН состоит ровно из 12 цифр.
func IsValidIIN(iin string) bool {
	if len(iin) != iinLength {
		return false
	}
	return allDigits(iin)
}

// IsValidApplicationNumber проверяет формат номера заявления: APP и не менее шести цифр.
func IsValidApplicationNumber(number string) bool {
	digits, ok := strings.CutPrefix(number, applicationPrefix)
	if !ok || len(digits) < applicationMinDigits {
		return false
	}
	return allDigits(digits)
}

// IsValidIINFragment проверяет фрагмент ИИН для поиска по подстроке.
func IsValidIINFragment(fragment string) bool {
	if fragment == "" || len(fragment) > iinLength {
		return false
	}
	return allDigits(fragment)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !unicode.IsDigit(rune(s[i])) {
			return false
		}
	}
	return true
}

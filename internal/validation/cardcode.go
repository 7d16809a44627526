// Package validation содержит функции валидации входных данных.
package validation

import (
	"crypto/rand"
	"fmt"
)

// Алфавит без визуально неоднозначных символов (0/O, 1/I).
const cardCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateCardCode возвращает новый код подарочной карты формата GC-XXXX-XXXX.
func GenerateCardCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	chars := make([]byte, 8)
	for i, b := range buf {
		chars[i] = cardCodeAlphabet[int(b)%len(cardCodeAlphabet)]
	}

	return fmt.Sprintf("GC-%s-%s", chars[:4], chars[4:]), nil
}

// IsValidCardCode проверяет код подарочной карты на соответствие формату GC-XXXX-XXXX.
func IsValidCardCode(code string) bool {
	if len(code) != 12 {
		return false
	}
	if code[0] != 'G' || code[1] != 'C' || code[2] != '-' || code[7] != '-' {
		return false
	}

	for _, i := range []int{3, 4, 5, 6, 8, 9, 10, 11} {
		if !isCardCodeChar(code[i]) {
			return false
		}
	}

	return true
}

func isCardCodeChar(c byte) bool {
	for i := 0; i < len(cardCodeAlphabet); i++ {
		if cardCodeAlphabet[i] == c {
			return true
		}
	}
	return false
}

package common

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// ReferralCodeLength длина реферального кода
const ReferralCodeLength = 6

// ReferralCodePrefix префикс кода в ссылке и в параметре /start
const ReferralCodePrefix = "ref_"

const referralCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateEntryID генерирует уникальный ID записи журнала очков
func GenerateEntryID() string {
	return uuid.New().String()
}

// GenerateReferralCode генерирует случайный код из заглавных латинских букв и цифр
func GenerateReferralCode() (string, error) {
	b := make([]byte, ReferralCodeLength)
	max := big.NewInt(int64(len(referralCodeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации случайного числа: %w", err)
		}
		b[i] = referralCodeCharset[n.Int64()]
	}
	return string(b), nil
}

// NormalizeReferralCode убирает пробелы и префикс "ref_", приводит код к верхнему регистру
func NormalizeReferralCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) >= len(ReferralCodePrefix) && strings.EqualFold(code[:len(ReferralCodePrefix)], ReferralCodePrefix) {
		code = code[len(ReferralCodePrefix):]
	}
	return strings.ToUpper(code)
}

// IsValidReferralCode проверяет формат кода (без обращения к хранилищу)
func IsValidReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(referralCodeCharset, c) {
			return false
		}
	}
	return true
}

// DisplayNameOf возвращает имя для вывода в таблице лидеров и сообщениях
func DisplayNameOf(displayName, firstName, lastName string, telegramID int64) string {
	if displayName != "" {
		return displayName
	}
	name := strings.TrimSpace(firstName + " " + lastName)
	if name != "" {
		return name
	}
	return fmt.Sprintf("Игрок %d", telegramID)
}

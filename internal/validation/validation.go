// Package validation содержит функции валидации входных данных.
package validation

import "unicode/utf8"

const (
	maxLoginLength    = 50
	minPasswordLength = 4
	maxPasswordLength = 100
	minPhoneLength    = 10
	maxPhoneLength    = 20
)

// IsValidLogin проверяет логин: от 1 до 50 символов из латиницы, цифр и символов _ . @ -.
func IsValidLogin(login string) bool {
	if login == "" || len(login) > maxLoginLength {
		return false
	}
	for _, ch := range login {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '_', ch == '.', ch == '@', ch == '-':
		default:
			return false
		}
	}
	return true
}

// IsValidPassword проверяет длину пароля в символах.
func IsValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= minPasswordLength && n <= maxPasswordLength
}

// IsValidPhoneNumber проверяет номер телефона: от 10 до 20 символов, только цифры и необязательный ведущий +.
func IsValidPhoneNumber(phone string) bool {
	if len(phone) < minPhoneLength || len(phone) > maxPhoneLength {
		return false
	}
	for i, ch := range phone {
		if ch == '+' && i == 0 {
			continue
		}
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewUUID генерирует UUID v4
func NewUUID() string {
	return uuid.New().String()
}

// NewTransactionID — идентификатор транзакции шлюза: TXN- и 16 hex-символов
func NewTransactionID() string {
	return "TXN-" + compactID()[:16]
}

// NewTransferReference — ссылка на банковский перевод репасса
func NewTransferReference() string {
	return "TRF-" + compactID()[:16]
}

// IsUUID проверяет формат идентификатора
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func compactID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

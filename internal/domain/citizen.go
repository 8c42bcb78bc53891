package domain

import "time"

// Citizen is a registered person that opens tickets through the chat channel.
type Citizen struct {
	ID         string
	Phone      string
	Name       string
	DocumentID string
	Email      *string
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentIDLength is the number of digits of a CPF.
const DocumentIDLength = 11

// NormalizeDocumentID strips every non-digit and reports whether exactly
// eleven digits remain. Check digits are not verified.
func NormalizeDocumentID(raw string) (string, bool) {
	digits := make([]rune, 0, len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	return string(digits), len(digits) == DocumentIDLength
}

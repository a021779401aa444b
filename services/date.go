package services

import (
	"strings"
	"time"

	"meu_perito_go/models"
)

// BRDateLayout is how dates appear inside court documents (dd/mm/yyyy)
const BRDateLayout = "02/01/2006"

// ParseDate parses a docket date. Only YYYY-MM-DD is accepted, so session
// keys compare correctly as strings.
func ParseDate(dateStr string) (time.Time, error) {
	parsed, err := time.Parse(models.DateLayout, strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}, newDocketError(ErrInvalidInput, "date", "date %q must be YYYY-MM-DD", dateStr)
	}
	return parsed, nil
}

// ParseBRDate parses a dd/mm/yyyy date as printed in petitions
func ParseBRDate(dateStr string) (time.Time, error) {
	parsed, err := time.Parse(BRDateLayout, strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}, newDocketError(ErrInvalidInput, "date", "date %q must be dd/mm/yyyy", dateStr)
	}
	return parsed, nil
}

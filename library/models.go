package library

import (
	"time"

	"github.com/google/uuid"
)

// FeeStatus is the paid state of a member's library fee.
type FeeStatus string

const (
	FeePaid   FeeStatus = "Yes"
	FeeUnpaid FeeStatus = "No"
)

// ParseFeeStatus accepts exactly "Yes" or "No".
func ParseFeeStatus(s string) (FeeStatus, bool) {
	switch FeeStatus(s) {
	case FeePaid, FeeUnpaid:
		return FeeStatus(s), true
	}
	return "", false
}

// DateLayout is the day-resolution format of the Last Updated column.
const DateLayout = "2006-01-02"

// Member is one row of the registry. Identity on disk is positional; ID is
// derived on load from the fields that never change after registration.
type Member struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	CNIC        string    `json:"cnic"`
	Address     string    `json:"address"`
	Photo       string    `json:"photo"`
	FeePaid     FeeStatus `json:"fee_paid"`
	LastUpdated time.Time `json:"last_updated"`
}

// Columns is the fixed header of the store file.
var Columns = []string{"Name", "Phone", "CNIC", "Address", "Photo", "Fee Paid", "Last Updated"}

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Name    string
	Phone   string
	CNIC    string
	Address string
	// FeePaid defaults to FeePaid when empty.
	FeePaid string
	// Photo is left unset on the record when empty.
	Photo []byte
}

package models

// SellerStatus is the fixed lifecycle status enum for a seller record.
type SellerStatus string

const (
	SellerStatusProspect    SellerStatus = "Prospect"
	SellerStatusAssessing   SellerStatus = "Assessing"
	SellerStatusNegotiating SellerStatus = "Negotiating"
	SellerStatusContracted  SellerStatus = "Contracted"
	SellerStatusSettled     SellerStatus = "Settled"
	SellerStatusCancelled   SellerStatus = "Cancelled"
)

// HasActiveContract reports whether the status represents a live contract.
// Records in this state must never be auto-deleted by the sync.
func (s SellerStatus) HasActiveContract() bool {
	return s == SellerStatusContracted
}

// ValidSellerStatuses lists every accepted status value. Spreadsheet cells
// outside this set are stored as-is; the guard only keys off Contracted.
var ValidSellerStatuses = []SellerStatus{
	SellerStatusProspect,
	SellerStatusAssessing,
	SellerStatusNegotiating,
	SellerStatusContracted,
	SellerStatusSettled,
	SellerStatusCancelled,
}

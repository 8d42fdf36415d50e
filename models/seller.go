package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var sellerValidate = validator.New()

// Seller is the store side of one spreadsheet row. SellerNumber is the
// business key: it uniquely and stably identifies the record across both the
// sheet and the store. DeletedAt is managed by the sync engine (soft delete),
// never by GORM hooks.
type Seller struct {
	ID               int              `gorm:"primary_key" json:"id"`
	SellerNumber     string           `gorm:"uniqueIndex;size:30;not null" json:"seller_number" validate:"required,max=30"`
	Name             string           `gorm:"size:100" json:"name"`
	Phone            string           `gorm:"size:50" json:"phone"`
	Email            string           `gorm:"size:100" json:"email"`
	Address          string           `gorm:"type:text" json:"address"`
	Status           SellerStatus     `gorm:"type:enum('Prospect','Assessing','Negotiating','Contracted','Settled','Cancelled');default:'Prospect'" json:"status"`
	AssessmentAmount *decimal.Decimal `gorm:"type:decimal(20,4)" json:"assessment_amount"`
	SiteArea         *decimal.Decimal `gorm:"type:decimal(20,4)" json:"site_area"`
	InquiryDate      *time.Time       `gorm:"type:date" json:"inquiry_date"`
	VisitedAt        *time.Time       `json:"visited_at"`
	NextCallDate     *time.Time       `gorm:"type:date" json:"next_call_date"`
	Remarks          string           `gorm:"type:text" json:"remarks"`
	StorageLocation  string           `gorm:"size:255" json:"storage_location"`
	MediaURL         string           `gorm:"size:255" json:"media_url"`
	DeletedAt        *time.Time       `gorm:"index" json:"deleted_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Seller) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Validate checks the structural constraints before an insert. Content
// quality (odd phone formats, free-text statuses) is deliberately not
// policed here; the sheet is the system of record for field values.
func (s *Seller) Validate() error {
	return sellerValidate.Struct(s)
}

// Snapshot serializes the full record for the deletion audit trail.
func (s *Seller) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// GetSellerByNumber loads a seller by business key, including soft-deleted
// ones. Returns (nil, nil) when the key is unknown.
func GetSellerByNumber(ctx context.Context, db *gorm.DB, sellerNumber string) (*Seller, error) {
	var seller Seller
	err := db.WithContext(ctx).Where("seller_number = ?", sellerNumber).Take(&seller).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seller, nil
}

// CountActiveProperties returns the number of non-deleted listings owned by
// the seller (by foreign key, not by business key).
func CountActiveProperties(ctx context.Context, db *gorm.DB, sellerId int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Property{}).
		Where("seller_id = ? AND deleted_at IS NULL", sellerId).
		Count(&count).Error
	return count, err
}

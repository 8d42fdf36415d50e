package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"gorm.io/gorm"
)

const DefaultRecentActivityDays = 7

// ValidationResult is the guard's verdict on one deletion candidate.
type ValidationResult struct {
	CanDelete            bool   `json:"can_delete"`
	RequiresManualReview bool   `json:"requires_manual_review"`
	Reason               string `json:"reason,omitempty"`
}

// DeletionGuard applies the business rules that decide whether a record
// whose business key disappeared from the sheet may be auto-deleted, must
// be held for manual review, or is a no-op.
//
// Rule order is load-bearing: the active-contract rule is never bypassed by
// non-strict mode, and a manual-review hold is never downgraded to a
// failure.
type DeletionGuard struct {
	db                   *gorm.DB
	strict               bool
	recentActivityWindow time.Duration
	now                  func() time.Time
	countListings        func(ctx context.Context, sellerId int) (int64, error)
}

func NewDeletionGuard(db *gorm.DB, strict bool, recentActivityDays int) *DeletionGuard {
	if recentActivityDays <= 0 {
		recentActivityDays = DefaultRecentActivityDays
	}
	g := &DeletionGuard{
		db:                   db,
		strict:               strict,
		recentActivityWindow: time.Duration(recentActivityDays) * 24 * time.Hour,
		now:                  time.Now,
	}
	g.countListings = func(ctx context.Context, sellerId int) (int64, error) {
		return models.CountActiveProperties(ctx, g.db, sellerId)
	}
	return g
}

// Validate evaluates the rules in order; first match wins.
func (g *DeletionGuard) Validate(ctx context.Context, seller *models.Seller) (ValidationResult, error) {
	// 1. Missing or already soft-deleted: nothing to do.
	if seller == nil || seller.IsDeleted() {
		return ValidationResult{
			CanDelete: false,
			Reason:    "record not found or already deleted",
		}, nil
	}

	// 2. An active contract always blocks auto-deletion, strict or not.
	if seller.Status.HasActiveContract() {
		return ValidationResult{
			CanDelete:            false,
			RequiresManualReview: true,
			Reason:               fmt.Sprintf("status %s has an active contract", seller.Status),
		}, nil
	}

	// 3. Recent or upcoming activity. Advisory outside strict mode.
	now := g.now()
	if reason := g.recentActivity(seller, now); reason != "" {
		if g.strict {
			return ValidationResult{
				CanDelete:            false,
				RequiresManualReview: true,
				Reason:               reason,
			}, nil
		}
	}

	// 4. Active dependent listings. Advisory outside strict mode.
	count, err := g.countListings(ctx, seller.ID)
	if err != nil {
		return ValidationResult{}, utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	if count > 0 && g.strict {
		return ValidationResult{
			CanDelete:            false,
			RequiresManualReview: true,
			Reason:               fmt.Sprintf("owns %d active listing(s)", count),
		}, nil
	}

	// 5. Deletable.
	return ValidationResult{CanDelete: true}, nil
}

func (g *DeletionGuard) recentActivity(seller *models.Seller, now time.Time) string {
	if now.Sub(seller.UpdatedAt) < g.recentActivityWindow {
		return fmt.Sprintf("modified within the last %d days", int(g.recentActivityWindow.Hours()/24))
	}
	if seller.NextCallDate != nil && seller.NextCallDate.After(now) {
		return fmt.Sprintf("has a scheduled call on %s", seller.NextCallDate.Format("2006-01-02"))
	}
	return ""
}

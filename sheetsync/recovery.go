package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecoveryResult reports what a recovery actually restored.
type RecoveryResult struct {
	SellerNumber       string `json:"seller_number"`
	PropertiesRestored int    `json:"properties_restored"`
	Warning            string `json:"warning,omitempty"`
}

// RecoveryService undoes a guarded deletion: it clears the seller's soft
// delete and stamps the audit entry so it cannot be replayed. Recovery is
// operator-only; the sync pipeline never resurrects a record on its own.
type RecoveryService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRecoveryService(db *gorm.DB, logger *logrus.Logger) *RecoveryService {
	return &RecoveryService{db: db, logger: logger}
}

// Recover restores the seller named by the most recent open audit entry.
// The primary restore and the audit stamp commit together; the property
// cascade runs after commit and only degrades the result to a warning.
func (r *RecoveryService) Recover(ctx context.Context, sellerNumber string, actor string) (*RecoveryResult, error) {
	entry, err := models.GetOpenDeletionLog(ctx, r.db, sellerNumber)
	if err != nil {
		return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	if entry == nil {
		return nil, utils.KindErrorf(utils.ErrorKindBusinessRule,
			"no recoverable deletion found for seller %s", sellerNumber)
	}
	if entry.CanRecover != nil && !*entry.CanRecover {
		return nil, utils.KindErrorf(utils.ErrorKindBusinessRule,
			"deletion of seller %s is marked unrecoverable", sellerNumber)
	}

	now := time.Now().UTC()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Seller{}).
			Where("id = ? AND deleted_at IS NOT NULL", entry.SellerId).
			Update("deleted_at", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.KindErrorf(utils.ErrorKindBusinessRule,
				"seller %s is not deleted", sellerNumber)
		}
		// The recovered_at guard makes a concurrent double-recovery lose.
		stamp := tx.Model(&models.SellerDeletionLog{}).
			Where("id = ? AND recovered_at IS NULL", entry.ID).
			Updates(map[string]interface{}{
				"recovered_at": now,
				"recovered_by": actor,
			})
		if stamp.Error != nil {
			return stamp.Error
		}
		if stamp.RowsAffected == 0 {
			return utils.KindErrorf(utils.ErrorKindBusinessRule,
				"deletion of seller %s was already recovered", sellerNumber)
		}
		return nil
	})
	if err != nil {
		if utils.KindOf(err) == utils.ErrorKindBusinessRule {
			return nil, err
		}
		return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
	}

	result := &RecoveryResult{SellerNumber: sellerNumber}

	// Restore only the listings the deletion cascaded over, identified by
	// the shared deletion timestamp.
	cascade := r.db.WithContext(ctx).Model(&models.Property{}).
		Where("seller_id = ? AND deleted_at = ?", entry.SellerId, entry.DeletedAt).
		Update("deleted_at", nil)
	if cascade.Error != nil {
		config.LogError(r.logger, "sheetsync", "Recover", "property restore failed", logrus.Fields{
			"seller_number": sellerNumber,
		}, cascade.Error)
		result.Warning = fmt.Sprintf("seller restored but %d listing(s) could not be restored", entry.PropertiesDeleted)
		return result, nil
	}
	result.PropertiesRestored = int(cascade.RowsAffected)
	if result.PropertiesRestored < entry.PropertiesDeleted {
		result.Warning = fmt.Sprintf("restored %d of %d listing(s)", result.PropertiesRestored, entry.PropertiesDeleted)
	}

	r.logger.WithFields(logrus.Fields{
		"seller_number":       sellerNumber,
		"recovered_by":        actor,
		"properties_restored": result.PropertiesRestored,
	}).Info("seller recovered from deletion log")
	return result, nil
}

package sheetsync

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"gorm.io/gorm"
)

const defaultPageSize = 1000

// FieldChange is one field-level mismatch, normalized old/new renderings.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// UpdateCandidate is one record present on both sides with at least one
// differing compared field.
type UpdateCandidate struct {
	BusinessKey   string                 `json:"business_key"`
	ChangedFields map[string]FieldChange `json:"changed_fields"`
}

// KeySnapshot is the pre-run store key census. Deletion candidates are
// computed against it, never against mid-run store state.
type KeySnapshot struct {
	// All holds every business key in the store, soft-deleted included.
	All map[string]bool
	// Active holds only keys whose record is not soft-deleted.
	Active map[string]bool
}

// DiffEngine classifies every business record as new, changed or removed by
// comparing the full source corpus against the paged-in store corpus.
// Results are deterministic: stable sort on the numeric suffix of the
// business key, no reliance on map iteration order.
type DiffEngine struct {
	db       *gorm.DB
	mapper   *RecordMapper
	pageSize int
}

func NewDiffEngine(db *gorm.DB, mapper *RecordMapper, pageSize int) *DiffEngine {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &DiffEngine{db: db, mapper: mapper, pageSize: pageSize}
}

// LoadKeySnapshot pages through the whole store (keyset on id, stopping on
// a short page) and returns the key census. onlyKey restricts the scan to a
// single business key (targeted resync).
func (e *DiffEngine) LoadKeySnapshot(ctx context.Context, onlyKey string) (*KeySnapshot, error) {
	snap := &KeySnapshot{
		All:    make(map[string]bool),
		Active: make(map[string]bool),
	}

	type sellerKey struct {
		ID           int
		SellerNumber string
		DeletedAt    *time.Time
	}

	lastID := 0
	for {
		query := e.db.WithContext(ctx).Model(&models.Seller{}).
			Select("id", "seller_number", "deleted_at").
			Where("id > ?", lastID).
			Order("id").
			Limit(e.pageSize)
		if onlyKey != "" {
			query = query.Where("seller_number = ?", onlyKey)
		}

		var page []sellerKey
		if err := query.Find(&page).Error; err != nil {
			return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
		}
		for _, row := range page {
			snap.All[row.SellerNumber] = true
			if row.DeletedAt == nil {
				snap.Active[row.SellerNumber] = true
			}
			lastID = row.ID
		}
		if len(page) < e.pageSize {
			return snap, nil
		}
	}
}

// DetectAdditions returns source − store: business keys present in the
// source corpus only, sorted by numeric key suffix ascending. Soft-deleted
// store records still count as present; a key that was deleted and
// reappears is resurrected through operator recovery, not re-insert.
func (e *DiffEngine) DetectAdditions(sourceKeys []string, snap *KeySnapshot) []string {
	var missing []string
	for _, key := range sourceKeys {
		if !snap.All[key] {
			missing = append(missing, key)
		}
	}
	sortByKeySuffix(missing)
	return missing
}

// DetectDeletions returns store − source, restricted to records not already
// soft-deleted, sorted by numeric key suffix ascending.
func (e *DiffEngine) DetectDeletions(sourceSet map[string]bool, snap *KeySnapshot) []string {
	var removed []string
	for key := range snap.Active {
		if !sourceSet[key] {
			removed = append(removed, key)
		}
	}
	sortByKeySuffix(removed)
	return removed
}

// DetectUpdates pages through the active store records and reports every
// business key present on both sides whose compared fields differ. Fields
// on the exclusion list and the business key itself are never compared.
func (e *DiffEngine) DetectUpdates(ctx context.Context, sourceRows map[string]FieldValues, onlyKey string) ([]UpdateCandidate, error) {
	fields := e.mapper.Table().CompareFields()

	var candidates []UpdateCandidate
	lastID := 0
	for {
		query := e.db.WithContext(ctx).
			Where("id > ? AND deleted_at IS NULL", lastID).
			Order("id").
			Limit(e.pageSize)
		if onlyKey != "" {
			query = query.Where("seller_number = ?", onlyKey)
		}

		var page []models.Seller
		if err := query.Find(&page).Error; err != nil {
			return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
		}

		for i := range page {
			seller := &page[i]
			lastID = seller.ID

			source, ok := sourceRows[seller.SellerNumber]
			if !ok {
				continue
			}
			changed := e.compareFields(source, e.mapper.StoreValues(seller), fields)
			if len(changed) > 0 {
				candidates = append(candidates, UpdateCandidate{
					BusinessKey:   seller.SellerNumber,
					ChangedFields: changed,
				})
			}
		}
		if len(page) < e.pageSize {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return keyLess(candidates[i].BusinessKey, candidates[j].BusinessKey)
	})
	return candidates, nil
}

// compareFields reports the fields whose normalized values differ. Only
// fields the source row actually carries are compared: a column missing
// from the sheet is not a request to blank the store.
func (e *DiffEngine) compareFields(source FieldValues, store FieldValues, fields []string) map[string]FieldChange {
	table := e.mapper.Table()
	var changed map[string]FieldChange
	for _, field := range fields {
		sourceVal, ok := source[field]
		if !ok {
			continue
		}
		kind := table.KindOf(field)
		newNorm := normalizeForCompare(kind, sourceVal)
		oldNorm := normalizeForCompare(kind, store[field])
		if newNorm == oldNorm {
			continue
		}
		if changed == nil {
			changed = make(map[string]FieldChange)
		}
		changed[field] = FieldChange{Old: oldNorm, New: newNorm}
	}
	return changed
}

// keySuffix extracts the trailing numeric run of a business key ("A12" ->
// 12). Keys without one sort first, lexicographically.
func keySuffix(key string) (int, bool) {
	end := len(key)
	start := end
	for start > 0 && key[start-1] >= '0' && key[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(key[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func keyLess(a, b string) bool {
	na, oka := keySuffix(a)
	nb, okb := keySuffix(b)
	if oka != okb {
		return !oka
	}
	if oka && na != nb {
		return na < nb
	}
	return a < b
}

func sortByKeySuffix(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return keyLess(keys[i], keys[j])
	})
}

package sheetsync

import (
	"time"

	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/shopspring/decimal"
)

// FieldValues is a partial store record keyed by store field name. Values
// are converted (nil, string, decimal.Decimal or time.Time).
type FieldValues map[string]any

// RecordMapper converts spreadsheet rows into typed store values and back,
// driven entirely by the static mapping table. Pure: no store access.
type RecordMapper struct {
	table *MappingTable
	now   func() time.Time
}

func NewRecordMapper(table *MappingTable) *RecordMapper {
	return &RecordMapper{table: table, now: time.Now}
}

// Table exposes the mapping table for callers that need the compare-field
// list or conversion kinds.
func (m *RecordMapper) Table() *MappingTable {
	return m.table
}

// MapRow converts one sheet row into store field values. Headers absent
// from the mapping table are ignored. A missing headers argument is a
// caller error; a blank business key rejects the whole row. Malformed cell
// data never fails the row, it converts to nil.
func (m *RecordMapper) MapRow(headers []string, cells []string) (string, FieldValues, error) {
	if len(headers) == 0 {
		return "", nil, utils.KindErrorf(utils.ErrorKindFatal, "headers are required to map a row")
	}

	now := m.now()
	values := make(FieldValues, len(headers))
	for i, header := range headers {
		entry, ok := m.table.Lookup(header)
		if !ok {
			continue
		}
		if i >= len(cells) {
			// Trailing blank cells are dropped by spreadsheet APIs.
			continue
		}
		values[entry.StoreField] = convertCell(entry.Kind, cells[i], now)
	}

	key, _ := values[m.table.BusinessKeyField()].(string)
	if key == "" {
		return "", nil, utils.KindErrorf(utils.ErrorKindValidation, "row has no %s value", m.table.BusinessKeyColumn())
	}
	return key, values, nil
}

// MapRecord converts a store record back into a header-keyed partial row.
func (m *RecordMapper) MapRecord(seller *models.Seller) map[string]string {
	row := make(map[string]string, len(m.table.entries))
	for _, entry := range m.table.entries {
		row[entry.SheetColumn] = formatCell(entry.Kind, sellerFieldValue(seller, entry.StoreField))
	}
	return row
}

// StoreValues returns the mapped field values of a store record, the public
// accessor used by diffing and by tests.
func (m *RecordMapper) StoreValues(seller *models.Seller) FieldValues {
	values := make(FieldValues, len(m.table.entries))
	for _, entry := range m.table.entries {
		values[entry.StoreField] = sellerFieldValue(seller, entry.StoreField)
	}
	return values
}

// BuildSeller materializes a new store record from mapped values.
func (m *RecordMapper) BuildSeller(values FieldValues) *models.Seller {
	seller := &models.Seller{}
	for field, v := range values {
		setSellerField(seller, field, v)
	}
	return seller
}

// UpdateColumns restricts mapped values to the given fields, as a column
// map suitable for a guarded UPDATE.
func (m *RecordMapper) UpdateColumns(values FieldValues, fields []string) map[string]interface{} {
	updates := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if _, ok := m.table.Field(field); !ok {
			continue
		}
		v, ok := values[field]
		if !ok {
			continue
		}
		updates[field] = columnValue(v)
	}
	return updates
}

func columnValue(v any) interface{} {
	if v == nil {
		return nil
	}
	return v
}

func sellerFieldValue(s *models.Seller, field string) any {
	switch field {
	case "seller_number":
		return emptyToNil(s.SellerNumber)
	case "name":
		return emptyToNil(s.Name)
	case "phone":
		return emptyToNil(s.Phone)
	case "email":
		return emptyToNil(s.Email)
	case "address":
		return emptyToNil(s.Address)
	case "status":
		return emptyToNil(string(s.Status))
	case "assessment_amount":
		return decimalValue(s.AssessmentAmount)
	case "site_area":
		return decimalValue(s.SiteArea)
	case "inquiry_date":
		return timeValue(s.InquiryDate)
	case "visited_at":
		return timeValue(s.VisitedAt)
	case "next_call_date":
		return timeValue(s.NextCallDate)
	case "remarks":
		return emptyToNil(s.Remarks)
	case "storage_location":
		return emptyToNil(s.StorageLocation)
	case "media_url":
		return emptyToNil(s.MediaURL)
	}
	return nil
}

func setSellerField(s *models.Seller, field string, v any) {
	switch field {
	case "seller_number":
		s.SellerNumber, _ = v.(string)
	case "name":
		s.Name, _ = v.(string)
	case "phone":
		s.Phone, _ = v.(string)
	case "email":
		s.Email, _ = v.(string)
	case "address":
		s.Address, _ = v.(string)
	case "status":
		if str, ok := v.(string); ok {
			s.Status = models.SellerStatus(str)
		}
	case "assessment_amount":
		s.AssessmentAmount = decimalPtr(v)
	case "site_area":
		s.SiteArea = decimalPtr(v)
	case "inquiry_date":
		s.InquiryDate = timePtr(v)
	case "visited_at":
		s.VisitedAt = timePtr(v)
	case "next_call_date":
		s.NextCallDate = timePtr(v)
	case "remarks":
		s.Remarks, _ = v.(string)
	case "storage_location":
		s.StorageLocation, _ = v.(string)
	case "media_url":
		s.MediaURL, _ = v.(string)
	}
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decimalValue(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func decimalPtr(v any) *decimal.Decimal {
	if d, ok := v.(decimal.Decimal); ok {
		return &d
	}
	return nil
}

func timePtr(v any) *time.Time {
	if ts, ok := v.(time.Time); ok {
		return &ts
	}
	return nil
}

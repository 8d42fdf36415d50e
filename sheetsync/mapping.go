package sheetsync

import (
	"fmt"
	"sort"
	"strings"
)

// ConversionKind is the per-field type-conversion directive of a mapping
// entry.
type ConversionKind string

const (
	KindText     ConversionKind = "text"
	KindDate     ConversionKind = "date"
	KindDateTime ConversionKind = "datetime"
	KindNumber   ConversionKind = "number"
)

// FieldMapping binds one spreadsheet column to one store field.
type FieldMapping struct {
	SheetColumn string
	StoreField  string
	Kind        ConversionKind
	// BusinessKey marks the distinguished entry whose value identifies the
	// record across sheet and store.
	BusinessKey bool
}

// MappingTable is the static, validated, bidirectional column<->field map.
// The sheet header text is the contract, not the positional order.
type MappingTable struct {
	entries  []FieldMapping
	byColumn map[string]FieldMapping
	byField  map[string]FieldMapping
	keyEntry FieldMapping
	excluded map[string]bool
}

// NewMappingTable validates and indexes the given entries. Duplicate sheet
// columns, duplicate store fields and a missing business-key entry are all
// startup errors, not sync-time surprises.
func NewMappingTable(entries []FieldMapping, excludedFields []string) (*MappingTable, error) {
	t := &MappingTable{
		entries:  entries,
		byColumn: make(map[string]FieldMapping, len(entries)),
		byField:  make(map[string]FieldMapping, len(entries)),
		excluded: make(map[string]bool, len(excludedFields)),
	}

	keyCount := 0
	for _, e := range entries {
		col := strings.TrimSpace(e.SheetColumn)
		field := strings.TrimSpace(e.StoreField)
		if col == "" || field == "" {
			return nil, fmt.Errorf("mapping entry %q -> %q has an empty side", e.SheetColumn, e.StoreField)
		}
		switch e.Kind {
		case KindText, KindDate, KindDateTime, KindNumber:
		default:
			return nil, fmt.Errorf("mapping entry %q has unknown conversion kind %q", col, e.Kind)
		}
		if _, ok := t.byColumn[col]; ok {
			return nil, fmt.Errorf("duplicate sheet column %q in mapping table", col)
		}
		if _, ok := t.byField[field]; ok {
			return nil, fmt.Errorf("duplicate store field %q in mapping table", field)
		}
		t.byColumn[col] = e
		t.byField[field] = e
		if e.BusinessKey {
			keyCount++
			t.keyEntry = e
		}
	}
	if keyCount != 1 {
		return nil, fmt.Errorf("mapping table must declare exactly one business-key entry, got %d", keyCount)
	}
	if t.keyEntry.Kind != KindText {
		return nil, fmt.Errorf("business-key entry %q must be a text field", t.keyEntry.SheetColumn)
	}

	for _, f := range excludedFields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := t.byField[f]; !ok {
			return nil, fmt.Errorf("excluded field %q is not in the mapping table", f)
		}
		t.excluded[f] = true
	}

	return t, nil
}

// Lookup returns the mapping entry for a sheet column.
func (t *MappingTable) Lookup(column string) (FieldMapping, bool) {
	e, ok := t.byColumn[strings.TrimSpace(column)]
	return e, ok
}

// Field returns the mapping entry for a store field.
func (t *MappingTable) Field(field string) (FieldMapping, bool) {
	e, ok := t.byField[field]
	return e, ok
}

func (t *MappingTable) BusinessKeyColumn() string {
	return t.keyEntry.SheetColumn
}

func (t *MappingTable) BusinessKeyField() string {
	return t.keyEntry.StoreField
}

func (t *MappingTable) IsExcluded(field string) bool {
	return t.excluded[field]
}

// CompareFields lists every mapped store field subject to diffing: all
// entries except the business key and the excluded (manually-managed) set.
// Sorted for deterministic iteration.
func (t *MappingTable) CompareFields() []string {
	fields := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		if e.BusinessKey || t.excluded[e.StoreField] {
			continue
		}
		fields = append(fields, e.StoreField)
	}
	sort.Strings(fields)
	return fields
}

// Columns returns the sheet columns in declaration order.
func (t *MappingTable) Columns() []string {
	cols := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		cols = append(cols, e.SheetColumn)
	}
	return cols
}

// KindOf returns the conversion kind of a store field, defaulting to text
// for unknown fields.
func (t *MappingTable) KindOf(field string) ConversionKind {
	if e, ok := t.byField[field]; ok {
		return e.Kind
	}
	return KindText
}

// DefaultSellerTable is the versioned mapping for the seller worksheet.
// storage_location and media_url are owned by a separate manual-update
// workflow and excluded from diffing.
func DefaultSellerTable() *MappingTable {
	t, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "Seller No.", StoreField: "seller_number", Kind: KindText, BusinessKey: true},
		{SheetColumn: "Name", StoreField: "name", Kind: KindText},
		{SheetColumn: "Phone", StoreField: "phone", Kind: KindText},
		{SheetColumn: "Email", StoreField: "email", Kind: KindText},
		{SheetColumn: "Address", StoreField: "address", Kind: KindText},
		{SheetColumn: "Status", StoreField: "status", Kind: KindText},
		{SheetColumn: "Assessment Amount", StoreField: "assessment_amount", Kind: KindNumber},
		{SheetColumn: "Site Area", StoreField: "site_area", Kind: KindNumber},
		{SheetColumn: "Inquiry Date", StoreField: "inquiry_date", Kind: KindDate},
		{SheetColumn: "Visited At", StoreField: "visited_at", Kind: KindDateTime},
		{SheetColumn: "Next Call Date", StoreField: "next_call_date", Kind: KindDate},
		{SheetColumn: "Remarks", StoreField: "remarks", Kind: KindText},
		{SheetColumn: "Storage Location", StoreField: "storage_location", Kind: KindText},
		{SheetColumn: "Media URL", StoreField: "media_url", Kind: KindText},
	}, []string{"storage_location", "media_url"})
	if err != nil {
		// The default table is static; a validation failure here is a
		// programming error.
		panic(err)
	}
	return t
}

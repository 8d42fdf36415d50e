package sheetsync

import (
	"strings"
	"testing"
)

func TestNewMappingTable_RejectsDuplicateColumn(t *testing.T) {
	_, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "No.", StoreField: "seller_number", Kind: KindText, BusinessKey: true},
		{SheetColumn: "No.", StoreField: "name", Kind: KindText},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate sheet column") {
		t.Fatalf("expected duplicate column error, got %v", err)
	}
}

func TestNewMappingTable_RejectsDuplicateField(t *testing.T) {
	_, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "No.", StoreField: "seller_number", Kind: KindText, BusinessKey: true},
		{SheetColumn: "Name", StoreField: "seller_number", Kind: KindText},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate store field") {
		t.Fatalf("expected duplicate field error, got %v", err)
	}
}

func TestNewMappingTable_RequiresExactlyOneBusinessKey(t *testing.T) {
	_, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "Name", StoreField: "name", Kind: KindText},
	}, nil)
	if err == nil {
		t.Fatal("expected error for zero business keys")
	}

	_, err = NewMappingTable([]FieldMapping{
		{SheetColumn: "No.", StoreField: "seller_number", Kind: KindText, BusinessKey: true},
		{SheetColumn: "Name", StoreField: "name", Kind: KindText, BusinessKey: true},
	}, nil)
	if err == nil {
		t.Fatal("expected error for two business keys")
	}
}

func TestNewMappingTable_BusinessKeyMustBeText(t *testing.T) {
	_, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "No.", StoreField: "seller_number", Kind: KindNumber, BusinessKey: true},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "text") {
		t.Fatalf("expected text key error, got %v", err)
	}
}

func TestNewMappingTable_ExcludedFieldMustExist(t *testing.T) {
	_, err := NewMappingTable([]FieldMapping{
		{SheetColumn: "No.", StoreField: "seller_number", Kind: KindText, BusinessKey: true},
	}, []string{"nope"})
	if err == nil || !strings.Contains(err.Error(), "excluded field") {
		t.Fatalf("expected excluded field error, got %v", err)
	}
}

func TestDefaultSellerTable_CompareFieldsOmitKeyAndExcluded(t *testing.T) {
	table := DefaultSellerTable()
	for _, field := range table.CompareFields() {
		switch field {
		case "seller_number":
			t.Fatal("business key must not be compared")
		case "storage_location", "media_url":
			t.Fatalf("excluded field %s must not be compared", field)
		}
	}
	if len(table.CompareFields()) != 11 {
		t.Fatalf("expected 11 compare fields, got %d", len(table.CompareFields()))
	}
	if table.BusinessKeyColumn() != "Seller No." {
		t.Fatalf("unexpected business key column %q", table.BusinessKeyColumn())
	}
}

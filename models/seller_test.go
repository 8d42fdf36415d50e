package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSellerStatusHasActiveContract(t *testing.T) {
	for _, status := range ValidSellerStatuses {
		expected := status == SellerStatusContracted
		if status.HasActiveContract() != expected {
			t.Fatalf("HasActiveContract(%s) expected %v", status, expected)
		}
	}
}

func TestSellerSnapshotRoundTrip(t *testing.T) {
	amount := decimal.NewFromInt(2500000)
	visited := time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC)
	seller := Seller{
		ID:               42,
		SellerNumber:     "A123",
		Name:             "Tanaka",
		Status:           SellerStatusAssessing,
		AssessmentAmount: &amount,
		VisitedAt:        &visited,
	}

	raw, err := seller.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	var restored Seller
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if restored.SellerNumber != "A123" || restored.Status != SellerStatusAssessing {
		t.Fatalf("snapshot lost fields: %+v", restored)
	}
	if restored.AssessmentAmount == nil || !restored.AssessmentAmount.Equal(amount) {
		t.Fatalf("snapshot lost assessment amount: %+v", restored.AssessmentAmount)
	}
}

func TestSellerIsDeleted(t *testing.T) {
	var seller Seller
	if seller.IsDeleted() {
		t.Fatal("fresh seller is not deleted")
	}
	now := time.Now()
	seller.DeletedAt = &now
	if !seller.IsDeleted() {
		t.Fatal("seller with deleted_at set is deleted")
	}
}

package domain

import (
	"testing"

	"gorm.io/datatypes"
)

func TestCanTransition(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout}
	for _, to := range terminal {
		if !CanTransition(StatusPending, to) {
			t.Fatalf("expected PENDING -> %s", to)
		}
		if CanTransition(to, StatusPending) {
			t.Fatalf("expected %s -> PENDING to be rejected", to)
		}
		if !CanTransition(to, to) {
			t.Fatalf("expected %s to repeat", to)
		}
	}
	if CanTransition(StatusCompleted, StatusFailed) {
		t.Fatalf("expected COMPLETED -> FAILED to be rejected")
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("completed")
	if err != nil || got != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q (%v)", got, err)
	}
	if _, err := ParseStatus("REFUNDED"); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFailureClass(t *testing.T) {
	if StatusCompleted.IsFailure() || StatusPending.IsFailure() {
		t.Fatalf("unexpected failure class")
	}
	if !StatusCancelled.IsFailure() || !StatusTimeout.IsFailure() {
		t.Fatalf("expected cancelled and timeout to be failures")
	}
}

func TestDetailsToleratesBadJSON(t *testing.T) {
	tx := Transaction{PaymentDetails: datatypes.JSON(`not-json`)}
	if tx.Details() != nil {
		t.Fatalf("expected nil details")
	}
	tx.PaymentDetails = datatypes.JSON(`[{"transactionId":"T9","paymentMode":"CARD"}]`)
	detail, ok := tx.LatestDetail()
	if !ok || detail.TransactionID != "T9" {
		t.Fatalf("expected T9, got %+v", detail)
	}
}

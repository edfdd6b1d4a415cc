package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func validInput() RecordTransactionInput {
	return RecordTransactionInput{
		Type:      "IN",
		Reference: "PO-1",
		Items:     []TransactionItemInput{{ProductID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	}
}

func TestProposal_CheckInput(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *RecordTransactionInput)
		field string
	}{
		{"bad type", func(in *RecordTransactionInput) { in.Type = "MOVE" }, "type"},
		{"blank reference", func(in *RecordTransactionInput) { in.Reference = "  " }, "reference"},
		{"long reference", func(in *RecordTransactionInput) { in.Reference = strings.Repeat("r", 101) }, "reference"},
		{"no items", func(in *RecordTransactionInput) { in.Items = nil }, "items"},
		{"missing product", func(in *RecordTransactionInput) { in.Items[0].ProductID = "" }, "items[0].productId"},
		{"zero quantity", func(in *RecordTransactionInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(in *RecordTransactionInput) { in.Items[0].UnitPrice = decimal.NewFromInt(-1) }, "items[0].unitPrice"},
		{"duplicate product", func(in *RecordTransactionInput) {
			in.Items = append(in.Items, TransactionItemInput{ProductID: "a", Quantity: 2})
		}, "items[1].productId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)

			err := propose(in).checkInput(in.Type)
			var de *domain.Error
			if !errors.As(err, &de) || de.Kind != domain.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if de.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, de.Field)
			}
		})
	}

	in := validInput()
	if err := propose(in).checkInput(in.Type); err != nil {
		t.Errorf("expected valid input to pass, got %v", err)
	}
}

func TestProposal_ValidateAndTransitions(t *testing.T) {
	in := validInput()
	in.Type = "OUT"
	in.Items[0].Quantity = 3
	p := propose(in)

	products := map[string]domain.Product{"a": {ID: "a", SKU: "A", Name: "Alpha", CurrentStock: 2}}
	if err := p.validate(products); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if p.state != ProposalProposed {
		t.Errorf("failed validation must not advance, got %s", p.state)
	}
	p.reject(errors.New("rejected"))
	if p.state != ProposalRejected {
		t.Errorf("expected rejected, got %s", p.state)
	}

	products["a"] = domain.Product{ID: "a", SKU: "A", Name: "Alpha", CurrentStock: 5}
	p = propose(in)
	if err := p.validate(products); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.state != ProposalValidated || p.txn.Items[0].ProductSKU != "A" {
		t.Errorf("unexpected proposal after validate: %s %+v", p.state, p.txn.Items[0])
	}
	p.commit()
	if p.state != ProposalCommitted {
		t.Errorf("expected committed, got %s", p.state)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on committed -> rejected")
		}
	}()
	p.reject(errors.New("too late"))
}

func TestProposal_ValidateRejectsRetiredAndUnknown(t *testing.T) {
	in := validInput()

	err := propose(in).validate(map[string]domain.Product{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for unknown product, got %v", err)
	}

	err = propose(in).validate(map[string]domain.Product{"a": {ID: "a", Retired: true}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for retired product, got %v", err)
	}
}

func TestPropose_RoundsPrice(t *testing.T) {
	in := validInput()
	in.Items[0].UnitPrice = decimal.RequireFromString("1.005")

	p := propose(in)
	if !p.txn.Items[0].UnitPrice.Equal(decimal.RequireFromString("1.01")) {
		t.Errorf("expected 1.01, got %s", p.txn.Items[0].UnitPrice)
	}
	if p.txn.Items[0].TransactionID != p.txn.ID {
		t.Error("item must reference its transaction")
	}
}

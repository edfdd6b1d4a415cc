package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ProposalState string

const (
	ProposalProposed  ProposalState = "proposed"
	ProposalValidated ProposalState = "validated"
	ProposalCommitted ProposalState = "committed"
	ProposalRejected  ProposalState = "rejected"
)

var proposalTransitions = map[ProposalState][]ProposalState{
	ProposalProposed:  {ProposalValidated, ProposalRejected},
	ProposalValidated: {ProposalCommitted, ProposalRejected},
}

type RecordTransactionInput struct {
	Type           string
	Reference      string
	Notes          string
	Items          []TransactionItemInput
	IdempotencyKey string
}

type TransactionItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// proposal carries one RecordTransaction call through
// proposed -> validated -> committed, or into rejected from either of the first two.
type proposal struct {
	state ProposalState
	txn   domain.Transaction
	err   error
}

func propose(in RecordTransactionInput) *proposal {
	txnType, _ := domain.ParseTransactionType(in.Type)
	txn := domain.Transaction{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      txnType,
		Reference: strings.TrimSpace(in.Reference),
		Notes:     strings.TrimSpace(in.Notes),
		Items:     make([]domain.TransactionDetail, 0, len(in.Items)),
	}
	for _, item := range in.Items {
		txn.Items = append(txn.Items, domain.TransactionDetail{
			ID:            uuid.Must(uuid.NewV7()).String(),
			TransactionID: txn.ID,
			ProductID:     strings.TrimSpace(item.ProductID),
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice.Round(2),
		})
	}
	return &proposal{state: ProposalProposed, txn: txn}
}

func (p *proposal) advance(to ProposalState) {
	for _, next := range proposalTransitions[p.state] {
		if next == to {
			p.state = to
			return
		}
	}
	panic(fmt.Sprintf("ledger: illegal proposal transition %s -> %s", p.state, to))
}

// checkInput validates everything that does not need stored state.
func (p *proposal) checkInput(rawType string) error {
	if p.txn.Type == "" {
		return domain.NewValidationError("type", "type must be IN or OUT, got %q", rawType)
	}
	if p.txn.Reference == "" {
		return domain.NewValidationError("reference", "reference is required")
	}
	if len(p.txn.Reference) > maxReferenceLength {
		return domain.NewValidationError("reference", "reference exceeds %d characters", maxReferenceLength)
	}
	if len(p.txn.Items) == 0 {
		return domain.NewValidationError("items", "at least one item is required")
	}

	seen := make(map[string]int, len(p.txn.Items))
	total := 0
	for i, item := range p.txn.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID == "" {
			return domain.NewValidationError(field+".productId", "productId is required")
		}
		if item.Quantity <= 0 {
			return domain.NewValidationError(field+".quantity", "quantity must be positive, got %d", item.Quantity)
		}
		if item.Quantity > domain.MaxQuantity {
			return domain.NewValidationError(field+".quantity", "quantity exceeds %d", domain.MaxQuantity)
		}
		if total > domain.MaxQuantity-item.Quantity {
			return domain.NewValidationError(field+".quantity", "total quantity exceeds %d", domain.MaxQuantity)
		}
		total += item.Quantity
		if item.UnitPrice.IsNegative() {
			return domain.NewValidationError(field+".unitPrice", "unitPrice cannot be negative")
		}
		if j, dup := seen[item.ProductID]; dup {
			return domain.NewValidationError(field+".productId",
				"product %s already listed in items[%d]", item.ProductID, j)
		}
		seen[item.ProductID] = i
	}
	return nil
}

// validate checks the proposal against the locked products and moves it to validated.
func (p *proposal) validate(products map[string]domain.Product) error {
	for i := range p.txn.Items {
		item := &p.txn.Items[i]
		product, ok := products[item.ProductID]
		if !ok {
			return domain.NewValidationError(fmt.Sprintf("items[%d].productId", i),
				"product %s does not exist", item.ProductID)
		}
		if product.Retired {
			return domain.NewValidationError(fmt.Sprintf("items[%d].productId", i),
				"product %s is retired", item.ProductID)
		}
		item.ProductName = product.Name
		item.ProductSKU = product.SKU
	}

	for _, change := range p.txn.StockChanges() {
		product := products[change.ProductID]
		if _, err := domain.ApplyDelta(product.ID, product.CurrentStock, change.Delta); err != nil {
			return err
		}
	}

	p.advance(ProposalValidated)
	return nil
}

// stamp dates the transaction; it runs while the product scopes are held.
func (p *proposal) stamp(at time.Time) {
	p.txn.Date = at
	for i := range p.txn.Items {
		p.txn.Items[i].Date = at
		p.txn.Items[i].Type = p.txn.Type
	}
	p.txn.ComputeTotals()
}

func (p *proposal) commit() {
	p.advance(ProposalCommitted)
}

func (p *proposal) reject(err error) error {
	p.advance(ProposalRejected)
	p.err = err
	return err
}

func (p *proposal) productIDs() []string {
	changes := p.txn.StockChanges()
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ProductID
	}
	return ids
}

package orderedit

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/stock"
)

func checkQuantity(cmd AddProductCommand) error {
	if cmd.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func checkShipment(o *order.Order) error {
	if o.HasBeenShipped() {
		return ErrOrderAlreadyShipped
	}
	return nil
}

// checkDuplicate forbids a second line for the same product in an order
// without invoices, or in the targeted invoice.
func (s *Service) checkDuplicate(ctx context.Context, o *order.Order, cmd AddProductCommand) error {
	var (
		matched  bool
		invoices []int64
	)
	for i := range o.Lines {
		if o.Lines[i].Matches(cmd.ProductID, cmd.VariantID) {
			matched = true
			invoices = append(invoices, o.Lines[i].InvoiceID)
		}
	}
	if !matched {
		return nil
	}

	if cmd.InvoiceID == nil {
		if !o.HasInvoice() {
			return ErrDuplicateProductInOrder
		}
		return nil
	}
	if !slices.Contains(invoices, *cmd.InvoiceID) {
		return nil
	}

	inv, err := s.invoices.GetByID(ctx, *cmd.InvoiceID)
	if err != nil {
		return errors.Wrapf(err, "get invoice #%d", *cmd.InvoiceID)
	}
	return &DuplicateProductInInvoiceError{InvoiceNumber: s.numbers.Format(inv.Number)}
}

// checkStock refuses quantities above the available stock unless the
// product may be sold out of stock. The order's own lines already
// decremented the available quantity.
func (s *Service) checkStock(ctx context.Context, p *product.Product, v *product.Variant, qty int) error {
	policy, err := s.stock.OutOfStockPolicy(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "product #%d out of stock policy", p.ID)
	}
	if stock.Orderable(policy, s.cfg.AllowOutOfStockOrdering) {
		return nil
	}

	var variantID int64
	if v != nil {
		variantID = v.ID
	}
	available, err := s.stock.AvailableQuantity(ctx, p.ID, variantID)
	if err != nil {
		return errors.Wrapf(err, "product #%d available quantity", p.ID)
	}
	if available < qty {
		return &ProductOutOfStockError{ProductID: p.ID}
	}
	return nil
}

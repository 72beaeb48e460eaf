package orderedit

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/stock"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

const instrumentationName = "github.com/xenking/kart-backoffice/internal/domain/orderedit"

// Transactor runs fn in a single storage transaction carried by ctx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Carts loads and mutates order carts.
type Carts interface {
	ForOrder(ctx context.Context, orderID, carrierID, addressID int64) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, c *cart.Cart, p *product.Product, v *product.Variant, qty int, addressID int64) (int, error)
	SetPriceOverride(ctx context.Context, c *cart.Cart, o cart.Override) error
	AddRule(ctx context.Context, c *cart.Cart, rule *discount.Rule) error
}

// InvoiceNumbers allocates and formats invoice numbers.
type InvoiceNumbers interface {
	Next(ctx context.Context, shopID int64) (int64, error)
	Format(number int64) string
}

// AmountUpdater recomputes order totals.
type AmountUpdater interface {
	Recompute(ctx context.Context, o *order.Order, c *cart.Cart, pc pricing.Context, invoiceID int64) error
}

var (
	_ Carts          = (*cart.Service)(nil)
	_ InvoiceNumbers = (*invoice.Numberer)(nil)
	_ AmountUpdater  = (*order.AmountUpdater)(nil)
)

// Config holds the shop settings the workflow depends on.
type Config struct {
	Pricing                 pricing.Defaults
	TaxAddress              tax.AddressKind
	AllowOutOfStockOrdering bool
}

// Deps bundles the collaborators of the service.
type Deps struct {
	Tx       Transactor
	Orders   order.Repository
	Products product.Repository
	Stock    stock.Repository
	Carts    Carts
	Invoices invoice.Repository
	Numbers  InvoiceNumbers
	Rules    discount.Repository
	Taxes    tax.Factory
	Amounts  AmountUpdater
	Events   order.EventPublisher

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service adds products to placed orders.
type Service struct {
	cfg      Config
	tx       Transactor
	orders   order.Repository
	products product.Repository
	stock    stock.Repository
	carts    Carts
	invoices invoice.Repository
	numbers  InvoiceNumbers
	rules    discount.Repository
	taxes    tax.Factory
	amounts  AmountUpdater
	events   order.EventPublisher
	now      func() time.Time

	tracer     trace.Tracer
	linesAdded metric.Int64Counter
	failures   metric.Int64Counter
}

// NewService creates an order edit Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	meter := deps.MeterProvider.Meter(instrumentationName)
	linesAdded, err := meter.Int64Counter("orderedit.lines_added",
		metric.WithDescription("Number of product lines added to placed orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lines added counter")
	}
	failures, err := meter.Int64Counter("orderedit.failures",
		metric.WithDescription("Number of rejected or failed order edits"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}

	return &Service{
		cfg:        cfg,
		tx:         deps.Tx,
		orders:     deps.Orders,
		products:   deps.Products,
		stock:      deps.Stock,
		carts:      deps.Carts,
		invoices:   deps.Invoices,
		numbers:    deps.Numbers,
		rules:      deps.Rules,
		taxes:      deps.Taxes,
		amounts:    deps.Amounts,
		events:     deps.Events,
		now:        time.Now,
		tracer:     deps.TracerProvider.Tracer(instrumentationName),
		linesAdded: linesAdded,
		failures:   failures,
	}, nil
}

// AddProduct adds a product line to an existing order. Every step runs in
// one transaction: on error nothing is persisted.
func (s *Service) AddProduct(ctx context.Context, cmd AddProductCommand) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "orderedit.AddProduct",
		trace.WithAttributes(
			attribute.Int64("order.id", cmd.OrderID),
			attribute.Int64("product.id", cmd.ProductID),
			attribute.Int64("variant.id", cmd.variantID()),
			attribute.Int("quantity", cmd.Quantity),
		),
	)
	defer span.End()

	lg := zctx.From(ctx).With(
		zap.Int64("order_id", cmd.OrderID),
		zap.Int64("product_id", cmd.ProductID),
	)

	var res *Result
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.addProduct(ctx, cmd)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		reason := failureReason(err)
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		if isRejection(err) {
			lg.Warn("Add product rejected", zap.String("reason", reason), zap.Error(err))
		} else {
			lg.Error("Add product failed", zap.Error(err))
		}
		return nil, err
	}

	s.linesAdded.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int64("line.id", res.LineID),
		attribute.Int64("invoice.id", res.InvoiceID),
	)
	lg.Info("Product added to order",
		zap.Int64("line_id", res.LineID),
		zap.Int64("invoice_id", res.InvoiceID),
		zap.Int("quantity", cmd.Quantity),
	)
	return res, nil
}

func (s *Service) addProduct(ctx context.Context, cmd AddProductCommand) (*Result, error) {
	if err := checkQuantity(cmd); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order #%d", cmd.OrderID)
	}
	if err := checkShipment(o); err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, o, cmd); err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, cmd.ProductID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product #%d", cmd.ProductID)
	}
	var v *product.Variant
	if cmd.VariantID != nil {
		v, err = s.products.GetVariant(ctx, p.ID, *cmd.VariantID)
		if err != nil {
			return nil, errors.Wrapf(err, "get variant #%d", *cmd.VariantID)
		}
	}
	if err := s.checkStock(ctx, p, v, cmd.Quantity); err != nil {
		return nil, err
	}

	addressID := o.TaxAddressID(s.cfg.TaxAddress)
	c, err := s.carts.ForOrder(ctx, o.ID, o.CarrierID, addressID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, errors.Wrapf(err, "get cart of order #%d", o.ID)
	}

	pc, err := s.cfg.Pricing.NewContext(o.CurrencyISO, o.CustomerID, o.ShopID)
	if err != nil {
		return nil, errors.Wrapf(err, "pricing context of order #%d", o.ID)
	}
	pc = pc.WithCart(c.ID, c.Precision)

	switch result, err := s.carts.UpdateQuantity(ctx, c, p, v, cmd.Quantity, addressID); {
	case err != nil:
		return nil, persistErr("cart", c.ID, err)
	case result == cart.BelowMinimum:
		return nil, &MinimumQuantityError{ProductID: p.ID, Minimum: product.MinimalQuantity(p, v)}
	case result == cart.Rejected:
		return nil, &ProductOutOfStockError{ProductID: p.ID}
	}

	variantID := cmd.variantID()
	if err := s.carts.SetPriceOverride(ctx, c, cart.Override{
		ProductID: p.ID,
		VariantID: variantID,
		TaxExcl:   cmd.PriceTaxExcl,
		TaxIncl:   cmd.PriceTaxIncl,
	}); err != nil {
		return nil, persistErr("cart", c.ID, err)
	}

	item, ok := c.Item(pc, p.ID, &variantID)
	if !ok {
		return nil, errors.Errorf("cart #%d has no line for product #%d", c.ID, p.ID)
	}
	item = item.WithQuantity(pc, cmd.Quantity)

	inv, err := s.resolveInvoice(ctx, o, c, pc, cmd, item)
	if err != nil {
		return nil, err
	}
	var invoiceID int64
	if inv != nil {
		invoiceID = inv.ID
	}

	line := newLine(o, item, invoiceID)
	if err := s.orders.CreateLine(ctx, &line); err != nil {
		return nil, persistErr("order line", 0, err)
	}
	if err := s.stock.Adjust(ctx, p.ID, variantID, -cmd.Quantity); err != nil {
		return nil, persistErr("stock", p.ID, err)
	}
	o.Lines = append(o.Lines, line)

	if err := s.reconcile(ctx, o, &line, pc); err != nil {
		return nil, err
	}
	if err := s.stock.Synchronize(ctx, p.ID); err != nil {
		return nil, persistErr("stock", p.ID, err)
	}
	if err := s.orders.SaveLineTaxes(ctx, line.ID, lineTaxes(item, &line, pc)); err != nil {
		return nil, persistErr("order line taxes", line.ID, err)
	}
	if err := s.amounts.Recompute(ctx, o, c, pc, invoiceID); err != nil {
		return nil, persistErr("order", o.ID, err)
	}

	if err := s.events.PublishEdited(ctx, order.Edited{
		ID:         uuid.New(),
		OrderID:    o.ID,
		ProductID:  p.ID,
		VariantID:  variantID,
		Quantity:   cmd.Quantity,
		InvoiceID:  invoiceID,
		LineID:     line.ID,
		OccurredAt: s.now(),
	}); err != nil {
		return nil, persistErr("order event", o.ID, err)
	}

	return &Result{LineID: line.ID, InvoiceID: invoiceID}, nil
}

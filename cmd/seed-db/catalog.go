package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/pricing"
	"github.com/xenking/kart-backoffice/internal/domain/stock"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

type currencySeed struct {
	ISO       string
	Precision int32
}

type taxRuleSeed struct {
	Country string
	Rate    string
	Percent decimal.Decimal
}

type taxGroupSeed struct {
	Name   string
	Method tax.Method
	Rules  []taxRuleSeed
}

type carrierSeed struct {
	Name         string
	ShippingCost decimal.Decimal
	TaxGroup     string
}

type variantSeed struct {
	Reference       string
	MinimalQuantity int
	PriceImpact     decimal.Decimal
	WeightImpact    decimal.Decimal
	Stock           int
}

type productSeed struct {
	Name            string
	Reference       string
	Price           decimal.Decimal
	MinimalQuantity int
	Weight          decimal.Decimal
	OutOfStock      stock.OutOfStockPolicy
	TaxGroup        string
	Stock           int
	Variants        []variantSeed
}

type catalog struct {
	Currencies []currencySeed
	TaxGroups  []taxGroupSeed
	Carriers   []carrierSeed
	Products   []productSeed
}

func decodeCatalog(data []byte) (*catalog, error) {
	var c catalog
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "currencies":
			return d.Arr(func(d *jx.Decoder) error {
				var (
					s            currencySeed
					hasPrecision bool
				)
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "iso":
						return decodeStr(d, &s.ISO)
					case "precision":
						hasPrecision = true
						v, err := d.Int32()
						s.Precision = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				if !hasPrecision {
					s.Precision = pricing.PrecisionFor(s.ISO)
				}
				c.Currencies = append(c.Currencies, s)
				return nil
			})
		case "tax_groups":
			return d.Arr(func(d *jx.Decoder) error {
				g, err := decodeTaxGroup(d)
				if err != nil {
					return err
				}
				c.TaxGroups = append(c.TaxGroups, g)
				return nil
			})
		case "carriers":
			return d.Arr(func(d *jx.Decoder) error {
				var s carrierSeed
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "name":
						return decodeStr(d, &s.Name)
					case "shipping_cost":
						return decodeDecimal(d, &s.ShippingCost)
					case "tax_group":
						return decodeStr(d, &s.TaxGroup)
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				c.Carriers = append(c.Carriers, s)
				return nil
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return &c, nil
}

func decodeTaxGroup(d *jx.Decoder) (taxGroupSeed, error) {
	var g taxGroupSeed
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			return decodeStr(d, &g.Name)
		case "method":
			s, err := d.Str()
			if err != nil {
				return err
			}
			switch s {
			case "combine":
				g.Method = tax.Combine
			case "one_after_another":
				g.Method = tax.OneAfterAnother
			default:
				return errors.Errorf("unknown tax method %q", s)
			}
			return nil
		case "rules":
			return d.Arr(func(d *jx.Decoder) error {
				var r taxRuleSeed
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "country":
						return decodeStr(d, &r.Country)
					case "rate":
						return decodeStr(d, &r.Rate)
					case "percent":
						return decodeDecimal(d, &r.Percent)
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				g.Rules = append(g.Rules, r)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return g, err
}

func decodeProduct(d *jx.Decoder) (productSeed, error) {
	p := productSeed{MinimalQuantity: 1, OutOfStock: stock.Default}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			return decodeStr(d, &p.Name)
		case "reference":
			return decodeStr(d, &p.Reference)
		case "price":
			return decodeDecimal(d, &p.Price)
		case "minimal_quantity":
			v, err := d.Int()
			p.MinimalQuantity = v
			return err
		case "weight":
			return decodeDecimal(d, &p.Weight)
		case "out_of_stock":
			s, err := d.Str()
			if err != nil {
				return err
			}
			p.OutOfStock, err = parsePolicy(s)
			return err
		case "tax_group":
			return decodeStr(d, &p.TaxGroup)
		case "stock":
			v, err := d.Int()
			p.Stock = v
			return err
		case "variants":
			return d.Arr(func(d *jx.Decoder) error {
				v := variantSeed{MinimalQuantity: 1}
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "reference":
						return decodeStr(d, &v.Reference)
					case "minimal_quantity":
						n, err := d.Int()
						v.MinimalQuantity = n
						return err
					case "price_impact":
						return decodeDecimal(d, &v.PriceImpact)
					case "weight_impact":
						return decodeDecimal(d, &v.WeightImpact)
					case "stock":
						n, err := d.Int()
						v.Stock = n
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return p, err
}

func parsePolicy(s string) (stock.OutOfStockPolicy, error) {
	switch s {
	case "deny":
		return stock.Deny, nil
	case "allow":
		return stock.Allow, nil
	case "default", "":
		return stock.Default, nil
	default:
		return 0, errors.Errorf("unknown out of stock policy %q", s)
	}
}

func decodeStr(d *jx.Decoder, dst *string) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

// decodeDecimal accepts amounts as JSON strings or numbers.
func decodeDecimal(d *jx.Decoder, dst *decimal.Decimal) error {
	var raw string
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return err
		}
		raw = s
	} else {
		n, err := d.Num()
		if err != nil {
			return err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "parse amount %q", raw)
	}
	*dst = v
	return nil
}

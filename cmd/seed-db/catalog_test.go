package main

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-backoffice/internal/domain/stock"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

func TestDecodeCatalog(t *testing.T) {
	c, err := decodeCatalog([]byte(`{
		"currencies": [{"iso": "EUR"}, {"iso": "JPY"}, {"iso": "usd", "precision": 4}],
		"tax_groups": [{
			"name": "CA-QC",
			"method": "one_after_another",
			"rules": [
				{"country": "CA", "rate": "GST", "percent": 5},
				{"country": "CA", "rate": "QST", "percent": "9.975"}
			]
		}],
		"carriers": [{"name": "Pickup", "shipping_cost": 0}],
		"products": [{
			"name": "T-shirt",
			"reference": "TEE",
			"price": "24.00",
			"out_of_stock": "allow",
			"tax_group": "CA-QC",
			"variants": [{"reference": "TEE-XL", "price_impact": "2.5", "stock": 12}],
			"unknown": {"nested": true}
		}],
		"comment": "ignored"
	}`))
	require.NoError(t, err)

	require.Len(t, c.Currencies, 3)
	assert.Equal(t, int32(2), c.Currencies[0].Precision)
	assert.Equal(t, int32(0), c.Currencies[1].Precision, "precision defaults to the currency standard")
	assert.Equal(t, int32(4), c.Currencies[2].Precision, "explicit precision wins")

	require.Len(t, c.TaxGroups, 1)
	g := c.TaxGroups[0]
	assert.Equal(t, tax.OneAfterAnother, g.Method)
	require.Len(t, g.Rules, 2)
	assert.True(t, decimal.RequireFromString("9.975").Equal(g.Rules[1].Percent))

	require.Len(t, c.Carriers, 1)
	assert.True(t, c.Carriers[0].ShippingCost.IsZero())

	require.Len(t, c.Products, 1)
	p := c.Products[0]
	assert.Equal(t, stock.Allow, p.OutOfStock)
	assert.Equal(t, 1, p.MinimalQuantity)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, 12, p.Variants[0].Stock)
	assert.True(t, decimal.RequireFromString("2.5").Equal(p.Variants[0].PriceImpact))
}

func TestDecodeCatalog_Errors(t *testing.T) {
	for _, data := range []string{
		`[]`,
		`{"tax_groups": [{"method": "sum"}]}`,
		`{"products": [{"out_of_stock": "maybe"}]}`,
		`{"products": [{"price": "ten"}]}`,
	} {
		_, err := decodeCatalog([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestDecodeCatalog_SeedFile(t *testing.T) {
	data, err := os.ReadFile("../../db/seed/catalog.json")
	require.NoError(t, err)

	c, err := decodeCatalog(data)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Products)

	groups := map[string]bool{}
	for _, g := range c.TaxGroups {
		groups[g.Name] = true
	}
	for _, p := range c.Products {
		assert.NotEmpty(t, p.Reference, p.Name)
		if p.TaxGroup != "" {
			assert.True(t, groups[p.TaxGroup], "product %s references unknown tax group %q", p.Reference, p.TaxGroup)
		}
	}
}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-backoffice/internal/domain/auth"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
	"github.com/xenking/kart-backoffice/internal/domain/product"
)

// --- Mock implementations ---

type mockEditor struct {
	cmd orderedit.AddProductCommand
	res *orderedit.Result
	err error
}

func (m *mockEditor) AddProduct(_ context.Context, cmd orderedit.AddProductCommand) (*orderedit.Result, error) {
	m.cmd = cmd
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

type mockDeleter struct {
	deleted []int64
	bulk    []int64
	err     error
}

func (m *mockDeleter) Delete(_ context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockDeleter) BulkDelete(_ context.Context, ids []int64) error {
	if m.err != nil {
		return m.err
	}
	m.bulk = ids
	return nil
}

type mockKeys struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// --- Helpers ---

var testPepper = []byte("pepper")

const (
	adminKey   = "admin-key"
	ordersKey  = "orders-key"
	catalogKey = "catalog-key"
)

func newKeys() *mockKeys {
	keys := map[string]*auth.APIKeyInfo{}
	for name, scopes := range map[string][]string{
		adminKey:   {auth.ScopeAll},
		ordersKey:  {auth.ScopeOrdersWrite},
		catalogKey: {auth.ScopeCatalogWrite},
	} {
		hash := HashKey(testPepper, name)
		keys[hash] = &auth.APIKeyInfo{ID: 1, KeyHash: hash, Name: name, Scopes: scopes}
	}
	return &mockKeys{keys: keys}
}

type fixture struct {
	editor  *mockEditor
	deleter *mockDeleter
	keys    *mockKeys
	router  chi.Router
}

func newFixture() *fixture {
	f := &fixture{
		editor:  &mockEditor{res: &orderedit.Result{LineID: 100, InvoiceID: 7}},
		deleter: &mockDeleter{},
		keys:    newKeys(),
	}
	f.router = chi.NewRouter()
	NewHandler(f.editor, f.deleter).Routes(f.router, NewSecurityHandler(f.keys, testPepper))
	return f
}

func (f *fixture) do(method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestAddProduct_Success(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/orders/42/products", adminKey, `{
		"product_id": 5,
		"variant_id": 91,
		"quantity": 2,
		"price_tax_incl": "12.00",
		"price_tax_excl": 10,
		"invoice_id": 7,
		"free_shipping": true,
		"comment": "ignored"
	}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"order_id":42,"line_id":100,"invoice_id":7}`, w.Body.String())

	cmd := f.editor.cmd
	assert.Equal(t, int64(42), cmd.OrderID)
	assert.Equal(t, int64(5), cmd.ProductID)
	require.NotNil(t, cmd.VariantID)
	assert.Equal(t, int64(91), *cmd.VariantID)
	assert.Equal(t, 2, cmd.Quantity)
	require.NotNil(t, cmd.PriceTaxIncl)
	assert.True(t, decimal.RequireFromString("12").Equal(*cmd.PriceTaxIncl))
	require.NotNil(t, cmd.PriceTaxExcl)
	assert.True(t, decimal.NewFromInt(10).Equal(*cmd.PriceTaxExcl))
	require.NotNil(t, cmd.InvoiceID)
	assert.Equal(t, int64(7), *cmd.InvoiceID)
	assert.True(t, cmd.FreeShipping)
}

func TestAddProduct_OptionalFields(t *testing.T) {
	f := newFixture()
	f.editor.res = &orderedit.Result{LineID: 3}

	w := f.do(http.MethodPost, "/api/orders/1/products", ordersKey,
		`{"product_id":5,"variant_id":null,"quantity":1,"invoice_id":0}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"order_id":1,"line_id":3,"invoice_id":null}`, w.Body.String())
	assert.Nil(t, f.editor.cmd.VariantID)
	assert.Nil(t, f.editor.cmd.InvoiceID)
	assert.Nil(t, f.editor.cmd.PriceTaxIncl)
}

func TestAddProduct_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid order id", "/api/orders/abc/products", `{"product_id":5,"quantity":1}`},
		{"zero order id", "/api/orders/0/products", `{"product_id":5,"quantity":1}`},
		{"empty body", "/api/orders/1/products", ``},
		{"not an object", "/api/orders/1/products", `[1,2]`},
		{"missing product", "/api/orders/1/products", `{"quantity":1}`},
		{"fractional quantity", "/api/orders/1/products", `{"product_id":5,"quantity":1.5}`},
		{"bad price", "/api/orders/1/products", `{"product_id":5,"quantity":1,"price_tax_incl":"abc"}`},
		{"negative price", "/api/orders/1/products", `{"product_id":5,"quantity":1,"price_tax_excl":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := f.do(http.MethodPost, tt.path, adminKey, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Zero(t, f.editor.cmd.ProductID, "service must not be called")
		})
	}
}

func TestAddProduct_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "invalid quantity",
			err:    orderedit.ErrInvalidQuantity,
			status: http.StatusBadRequest,
			body:   `{"code":400,"message":"quantity must be greater than 0"}`,
		},
		{
			name:   "order not found",
			err:    errors.Wrap(order.ErrNotFound, "get order #42"),
			status: http.StatusNotFound,
			body:   `{"code":404,"message":"order not found"}`,
		},
		{
			name:   "product not found",
			err:    errors.Wrap(product.ErrNotFound, "get product #5"),
			status: http.StatusNotFound,
			body:   `{"code":404,"message":"product not found"}`,
		},
		{
			name:   "variant not found",
			err:    product.ErrVariantNotFound,
			status: http.StatusNotFound,
			body:   `{"code":404,"message":"product variant not found"}`,
		},
		{
			name:   "invoice not found",
			err:    invoice.ErrNotFound,
			status: http.StatusNotFound,
			body:   `{"code":404,"message":"invoice not found"}`,
		},
		{
			name:   "shipped",
			err:    orderedit.ErrOrderAlreadyShipped,
			status: http.StatusConflict,
			body:   `{"code":409,"message":"order has already been shipped"}`,
		},
		{
			name:   "duplicate in order",
			err:    orderedit.ErrDuplicateProductInOrder,
			status: http.StatusConflict,
			body:   `{"code":409,"message":"product is already in the order"}`,
		},
		{
			name:   "duplicate in invoice",
			err:    &orderedit.DuplicateProductInInvoiceError{InvoiceNumber: "#IN000007"},
			status: http.StatusConflict,
			body:   `{"code":409,"message":"product is already in invoice #IN000007","invoice_number":"#IN000007"}`,
		},
		{
			name:   "out of stock",
			err:    &orderedit.ProductOutOfStockError{ProductID: 5},
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"message":"product #5 is out of stock"}`,
		},
		{
			name:   "minimum quantity",
			err:    &orderedit.MinimumQuantityError{ProductID: 5, Minimum: 3},
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"message":"product #5 must be added with a quantity of at least 3","minimum":3}`,
		},
		{
			name:   "cart missing",
			err:    orderedit.ErrCartNotFound,
			status: http.StatusInternalServerError,
			body:   `{"code":500,"message":"internal server error"}`,
		},
		{
			name:   "persistence",
			err:    &orderedit.PersistenceError{Entity: "order line", Err: errors.New("connection reset")},
			status: http.StatusInternalServerError,
			body:   `{"code":500,"message":"internal server error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.editor.err = tt.err

			w := f.do(http.MethodPost, "/api/orders/42/products", adminKey, `{"product_id":5,"quantity":1}`)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodDelete, "/api/products/9", catalogKey, "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{9}, f.deleter.deleted)
}

func TestDeleteProduct_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", product.ErrNotFound, http.StatusNotFound},
		{"referenced", &product.CannotDeleteError{ProductID: 9, Err: errors.New("fk")}, http.StatusUnprocessableEntity},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.deleter.err = tt.err
			w := f.do(http.MethodDelete, "/api/products/9", catalogKey, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestBulkDeleteProducts(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/products/bulk-delete", catalogKey, `{"ids":[1,2,3]}`)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{1, 2, 3}, f.deleter.bulk)
}

func TestBulkDeleteProducts_BadRequest(t *testing.T) {
	for _, body := range []string{`{"ids":[]}`, `{}`, `{"ids":[1,-2]}`, `{"ids":"1"}`} {
		f := newFixture()
		w := f.do(http.MethodPost, "/api/products/bulk-delete", catalogKey, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Nil(t, f.deleter.bulk, body)
	}
}

func TestSecurity(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"missing key", http.MethodDelete, "/api/products/1", "", http.StatusUnauthorized},
		{"unknown key", http.MethodDelete, "/api/products/1", "nope", http.StatusUnauthorized},
		{"orders key on catalog", http.MethodDelete, "/api/products/1", ordersKey, http.StatusForbidden},
		{"catalog key on orders", http.MethodPost, "/api/orders/1/products", catalogKey, http.StatusForbidden},
		{"catalog key on catalog", http.MethodDelete, "/api/products/1", catalogKey, http.StatusNoContent},
		{"admin key", http.MethodDelete, "/api/products/1", adminKey, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := f.do(tt.method, tt.path, tt.key, `{"product_id":1,"quantity":1}`)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSecurity_HashMismatch(t *testing.T) {
	f := newFixture()
	// The repository returns a row whose stored hash does not match.
	hash := HashKey(testPepper, "tampered")
	f.keys.keys[hash] = &auth.APIKeyInfo{KeyHash: HashKey(testPepper, "other"), Scopes: []string{auth.ScopeAll}}

	w := f.do(http.MethodDelete, "/api/products/1", "tampered", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecurity_LookupFailure(t *testing.T) {
	f := newFixture()
	f.keys.err = errors.New("connection refused")

	w := f.do(http.MethodDelete, "/api/products/1", adminKey, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHashKey(t *testing.T) {
	h := HashKey([]byte("pepper"), "secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey([]byte("pepper"), "secret"))
	assert.NotEqual(t, h, HashKey([]byte("other"), "secret"))
}

package promotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-engine/internal/customer"
)

type stubCustomers map[string]customer.Account

func (s stubCustomers) Get(ctx context.Context, id string) (customer.Account, error) {
	a, ok := s[id]
	if !ok {
		return customer.Account{}, customer.ErrNotFound
	}
	return a, nil
}

func (s stubCustomers) Save(ctx context.Context, a customer.Account) error {
	s[a.ID] = a
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newTestService(
		catalogPromotion("PROMO001", "P15C100", KindPercentage),
		catalogPromotion("PROMO003", "FREESHIP", KindFreeDelivery),
	)
	h := &Handler{Svc: svc, Customers: stubCustomers{
		"CUST001": {ID: "CUST001", AssignedPromotionIDs: []string{"PROMO003"}},
	}}
	r := chi.NewRouter()
	r.Post("/promotions/{id}/validate", h.Validate)
	r.Get("/customers/{id}/promotions", h.ListForCustomer)
	return r
}

type validateBody struct {
	Data struct {
		Valid          bool   `json:"valid"`
		DiscountAmount int64  `json:"discountAmount"`
		FreeDelivery   bool   `json:"freeDelivery"`
		PromotionName  string `json:"promotionName"`
		Reason         Reason `json:"reason"`
		Message        string `json:"message"`
	} `json:"data"`
}

func TestHandlerValidate(t *testing.T) {
	router := newTestRouter(t)
	body := `{"customerId":"CUST001","lines":[{"productId":"P001","shopId":"SHOP001","unitPrice":100000,"quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/promotions/PROMO001/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out validateBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Data.Valid)
	require.Equal(t, int64(10_000), out.Data.DiscountAmount)
	require.Equal(t, "P15C100", out.Data.PromotionName)
	require.Empty(t, out.Data.Reason)
}

func TestHandlerValidateUnknownPromotion(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/promotions/NOPE/validate", strings.NewReader(`{"lines":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out validateBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.False(t, out.Data.Valid)
	require.Equal(t, ReasonNotFound, out.Data.Reason)
	require.Equal(t, ReasonNotFound.Message(), out.Data.Message)
}

func TestHandlerValidateRejectsBadLines(t *testing.T) {
	router := newTestRouter(t)
	body := `{"lines":[{"productId":"P001","shopId":"SHOP001","unitPrice":100,"quantity":0}]}`
	req := httptest.NewRequest(http.MethodPost, "/promotions/PROMO001/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

func TestHandlerListForCustomer(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/CUST001/promotions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data []Promotion `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	require.Equal(t, "PROMO003", out.Data[0].ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/CUST999/promotions", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "CUSTOMER_NOT_FOUND")
}

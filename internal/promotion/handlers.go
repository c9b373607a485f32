package promotion

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/checkout-engine/internal/common"
	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/obs"
	"github.com/noah-isme/checkout-engine/internal/pricing"
)

// Handler exposes promotion validation and listing endpoints.
type Handler struct {
	Svc       *Service
	Customers customer.Store
}

type validateRequest struct {
	CustomerID          string         `json:"customerId"`
	ActivePromotionName string         `json:"activePromotionName"`
	Lines               []pricing.Line `json:"lines" validate:"dive"`
}

// Validate checks a promotion against the posted cart without recording usage.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "promotion service not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "promotion id is required", nil)
		return
	}
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	obs.Annotate(r.Context(), "customer_id", req.CustomerID)
	obs.Annotate(r.Context(), "promotion_id", id)
	result, err := h.Svc.Validate(r.Context(), ValidateInput{
		PromotionID:         id,
		CustomerID:          req.CustomerID,
		Subtotal:            pricing.Subtotal(req.Lines),
		Lines:               req.Lines,
		ActivePromotionName: req.ActivePromotionName,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to validate promotion", nil)
		return
	}
	common.Data(w, http.StatusOK, validateResponse(result))
}

// ListForCustomer returns the active promotions assigned to a customer.
func (h *Handler) ListForCustomer(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Customers == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "promotion service not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	account, err := h.Customers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeCustomerNotFound, "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to load customer", nil)
		return
	}
	promos, err := h.Svc.ActiveForCustomer(r.Context(), account)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to list promotions", nil)
		return
	}
	common.Data(w, http.StatusOK, promos)
}

func validateResponse(res Result) map[string]any {
	out := map[string]any{
		"valid":          res.Valid,
		"discountAmount": res.Discount,
		"freeDelivery":   res.FreeDelivery,
	}
	if res.PromotionName != "" {
		out["promotionName"] = res.PromotionName
	}
	if !res.Valid {
		out["reason"] = res.Reason
		out["message"] = res.Reason.Message()
	}
	return out
}

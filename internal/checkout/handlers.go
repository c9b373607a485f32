package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/checkout-engine/internal/common"
	"github.com/noah-isme/checkout-engine/internal/lock"
	"github.com/noah-isme/checkout-engine/internal/obs"
)

type Handler struct {
	Svc *Service
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload QuoteInput
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	obs.Annotate(r.Context(), "customer_id", payload.CustomerID)
	out, err := h.Svc.Quote(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload CompleteInput
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	obs.Annotate(r.Context(), "customer_id", payload.CustomerID)
	obs.Annotate(r.Context(), "order_id", payload.OrderID)
	out, err := h.Svc.Complete(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, lock.ErrNotAcquired) {
		common.JSONError(w, http.StatusConflict, common.CodeCheckoutInProgress, "another checkout for this customer is in progress", nil)
		return
	}
	common.WriteError(w, err, "checkout failed")
}

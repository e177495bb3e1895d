// README: Pricing handler; stateless estimate for a draft without persisting a quote.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"quotecore/internal/modules/pricing"
)

type Estimator interface {
	Quote(ctx context.Context, draft pricing.QuoteDraft, promoCode string) (pricing.QuoteResult, error)
}

type PricingHandler struct {
	pricing Estimator
}

func NewPricingHandler(svc Estimator) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

// draftReq is a QuoteDraft plus an optional promo code. Speed defaults to
// STANDARD when omitted.
type draftReq struct {
	pricing.QuoteDraft
	PromoCode string `json:"promoCode"`
}

func newDraftReq() draftReq {
	return draftReq{QuoteDraft: pricing.QuoteDraft{Speed: pricing.TierStandard}}
}

func (h *PricingHandler) Estimate(c *gin.Context) {
	req := newDraftReq()
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.pricing.Quote(c.Request.Context(), req.QuoteDraft, req.PromoCode)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// README: Quote handlers for create/get/recompute and lifecycle transitions.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quotecore/internal/modules/quote"
	"quotecore/internal/types"
)

type QuoteService interface {
	Create(ctx context.Context, cmd quote.CreateCommand) (*quote.Snapshot, error)
	Get(ctx context.Context, id types.ID) (*quote.Snapshot, error)
	Recompute(ctx context.Context, cmd quote.RecomputeCommand) (*quote.Snapshot, error)
	RequestSignature(ctx context.Context, id types.ID) (*quote.Snapshot, error)
	Confirm(ctx context.Context, id types.ID) (*quote.Snapshot, error)
	Schedule(ctx context.Context, cmd quote.ScheduleCommand) (*quote.Snapshot, error)
	Cancel(ctx context.Context, cmd quote.CancelCommand) (*quote.Snapshot, error)
}

type QuoteHandler struct {
	quotes QuoteService
}

func NewQuoteHandler(svc QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: svc}
}

type recomputeReq struct {
	quote.DraftPatch
	PromoCode *string `json:"promoCode,omitempty"`
}

type scheduleReq struct {
	Start time.Time `json:"start" binding:"required"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *QuoteHandler) Create(c *gin.Context) {
	req := newDraftReq()
	if !bindJSON(c, &req) {
		return
	}
	q, err := h.quotes.Create(c.Request.Context(), quote.CreateCommand{Draft: req.QuoteDraft, PromoCode: req.PromoCode})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, q)
}

func (h *QuoteHandler) Get(c *gin.Context) {
	q, err := h.quotes.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *QuoteHandler) Recompute(c *gin.Context) {
	var req recomputeReq
	if !bindJSON(c, &req) {
		return
	}
	q, err := h.quotes.Recompute(c.Request.Context(), quote.RecomputeCommand{
		QuoteID:   types.ID(c.Param("id")),
		Patch:     req.DraftPatch,
		PromoCode: req.PromoCode,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *QuoteHandler) RequestSignature(c *gin.Context) {
	h.respond(c)(h.quotes.RequestSignature(c.Request.Context(), types.ID(c.Param("id"))))
}

func (h *QuoteHandler) Confirm(c *gin.Context) {
	h.respond(c)(h.quotes.Confirm(c.Request.Context(), types.ID(c.Param("id"))))
}

func (h *QuoteHandler) Schedule(c *gin.Context) {
	var req scheduleReq
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.quotes.Schedule(c.Request.Context(), quote.ScheduleCommand{
		QuoteID: types.ID(c.Param("id")),
		Start:   req.Start,
	}))
}

func (h *QuoteHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.quotes.Cancel(c.Request.Context(), quote.CancelCommand{
		QuoteID:   types.ID(c.Param("id")),
		ActorType: "customer",
		Reason:    req.Reason,
	}))
}

func (h *QuoteHandler) respond(c *gin.Context) func(*quote.Snapshot, error) {
	return func(q *quote.Snapshot, err error) {
		if err != nil {
			writeServiceError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, q)
	}
}

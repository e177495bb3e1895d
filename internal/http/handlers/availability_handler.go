// README: Availability handler; lists bookable slots for a date range.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"quotecore/internal/modules/availability"
	"quotecore/internal/modules/pricing"
)

const defaultRangeDays = 14

type SlotFinder interface {
	Slots(ctx context.Context, q availability.SlotQuery) (availability.SlotsResult, error)
	Location() *time.Location
}

type AvailabilityHandler struct {
	slots SlotFinder
	now   func() time.Time
}

func NewAvailabilityHandler(svc SlotFinder) *AvailabilityHandler {
	return &AvailabilityHandler{slots: svc, now: time.Now}
}

// Slots handles GET /api/availability/slots. from defaults to today in the
// business timezone and to defaults to two weeks after from.
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	var q availability.SlotQuery

	q.From = civil.DateOf(h.now().In(h.slots.Location()))
	if v := c.Query("from"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid from date")
			return
		}
		q.From = d
	}
	q.To = q.From.AddDays(defaultRangeDays - 1)
	if v := c.Query("to"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid to date")
			return
		}
		q.To = d
	}

	speed, err := pricing.ParseTier(c.Query("speed"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	q.Speed = speed

	if v := c.Query("duration_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid duration_minutes")
			return
		}
		q.JobDurationMinutes = n
	}
	if v := c.Query("volume_m3"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid volume_m3")
			return
		}
		q.VolumeM3 = f
	}

	res, err := h.slots.Slots(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

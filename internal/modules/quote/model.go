// README: Quote snapshot aggregate and lifecycle status definitions.
package quote

import (
	"time"

	"quotecore/internal/modules/pricing"
	"quotecore/internal/types"
)

type Status string

const (
	StatusNone             Status = ""
	StatusQuote            Status = "QUOTE"
	StatusPendingSignature Status = "PENDING_SIGNATURE"
	StatusConfirmed        Status = "CONFIRMED"
	StatusScheduled        Status = "SCHEDULED"
	StatusCancelled        Status = "CANCELLED"
	StatusExpired          Status = "EXPIRED"
)

const DefaultTTL = 14 * 24 * time.Hour

// Booking is the slot a scheduled quote holds.
type Booking struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Snapshot struct {
	ID                 types.ID            `json:"id"`
	Status             Status              `json:"status"`
	StatusVersion      int                 `json:"statusVersion"`
	Draft              pricing.QuoteDraft  `json:"draft"`
	PromoCode          string              `json:"promoCode,omitempty"`
	RequestedPromoCode string              `json:"requestedPromoCode,omitempty"`
	Result             pricing.QuoteResult `json:"result"`
	Booking            *Booking            `json:"booking,omitempty"`
	CancelReason       *string             `json:"cancelReason,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	ExpiresAt          time.Time           `json:"expiresAt"`
}

// DueForExpiry reports whether the snapshot is unsigned and past its expiry.
func (s *Snapshot) DueForExpiry(now time.Time) bool {
	return autoExpires(s.Status) && !now.Before(s.ExpiresAt)
}

type Event struct {
	ID         int64
	QuoteID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	Reason     string
	CreatedAt  time.Time
}

// AllowedTransitions represents the quote lifecycle as code.
var AllowedTransitions = map[Status][]Status{
	StatusQuote:            {StatusPendingSignature, StatusCancelled, StatusExpired},
	StatusPendingSignature: {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed:        {StatusScheduled, StatusCancelled, StatusExpired},
	StatusScheduled:        {StatusCancelled, StatusExpired},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal states have no outgoing transitions.
func (s Status) Terminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// autoExpires is the set of states the expiry clock applies to. Signed
// quotes are kept until cancelled.
func autoExpires(s Status) bool {
	return s == StatusQuote || s == StatusPendingSignature
}

// DraftPatch carries the draft fields a recompute changes. Nil fields keep
// their current value.
type DraftPatch struct {
	Service      *pricing.ServiceFamily    `json:"service,omitempty"`
	Speed        *pricing.Tier             `json:"speed,omitempty"`
	VolumeM3     *float64                  `json:"volumeM3,omitempty"`
	Floors       *int                      `json:"floors,omitempty"`
	HasElevator  *bool                     `json:"hasElevator,omitempty"`
	ElevatorSize *pricing.ElevatorSize     `json:"elevatorSize,omitempty"`
	NoParking    *bool                     `json:"noParking,omitempty"`
	From         *types.Address            `json:"from,omitempty"`
	To           *types.Address            `json:"to,omitempty"`
	Extras       *pricing.Extras           `json:"extras,omitempty"`
	Options      *[]pricing.SelectedOption `json:"options,omitempty"`
}

func (p DraftPatch) Apply(d pricing.QuoteDraft) pricing.QuoteDraft {
	if p.Service != nil {
		d.Service = *p.Service
	}
	if p.Speed != nil {
		d.Speed = *p.Speed
	}
	if p.VolumeM3 != nil {
		d.VolumeM3 = *p.VolumeM3
	}
	if p.Floors != nil {
		d.Floors = *p.Floors
	}
	if p.HasElevator != nil {
		d.HasElevator = *p.HasElevator
	}
	if p.ElevatorSize != nil {
		d.ElevatorSize = *p.ElevatorSize
	}
	if p.NoParking != nil {
		d.NoParking = *p.NoParking
	}
	if p.From != nil {
		d.From = p.From
	}
	if p.To != nil {
		d.To = p.To
	}
	if p.Extras != nil {
		d.Extras = *p.Extras
	}
	if p.Options != nil {
		d.Options = append([]pricing.SelectedOption(nil), (*p.Options)...)
	}
	if p.From != nil || p.To != nil || p.Service != nil {
		d.DistanceKm = 0
		d.DistanceSource = ""
	}
	return d
}

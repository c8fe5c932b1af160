// Package admin serves the user-review queue and the dashboard numbers.
// Every route is mounted behind auth.RequireAdmin.
package admin

import (
	"context"

	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/webhook"
)

type DeliveryLog interface {
	RecentDeliveries(ctx context.Context, limit int) ([]webhook.Delivery, error)
}

// ProfileDecorator fills the derived profile flags the same way /me does.
type ProfileDecorator interface {
	Decorate(p *auth.Profile)
}

type Handler struct {
	db         database.DBTX
	notifier   notify.Notifier
	deliveries DeliveryLog
	profiles   ProfileDecorator
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}

func (h *Handler) SetNotifier(n notify.Notifier) {
	h.notifier = n
}

func (h *Handler) SetDeliveryLog(l DeliveryLog) {
	h.deliveries = l
}

func (h *Handler) SetProfileDecorator(d ProfileDecorator) {
	h.profiles = d
}

func (h *Handler) decorate(p *auth.Profile) {
	if h.profiles != nil {
		h.profiles.Decorate(p)
		return
	}
	auth.DecorateProfile(p, false)
}

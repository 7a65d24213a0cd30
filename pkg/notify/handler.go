package notify

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"digitalstore-backend/pkg/events"
)

// Handler - settlement olaylarını tüketir. Yan etkiler paralel çalışır, hiçbiri
// diğerini durdurmaz ve hata consumer'a dönmez.
type Handler struct {
	notifier Notifier
	roles    RoleGrantor
	log      zerolog.Logger
}

func NewHandler(notifier Notifier, roles RoleGrantor, log zerolog.Logger) *Handler {
	return &Handler{notifier: notifier, roles: roles, log: log}
}

func (h *Handler) Handle(ctx context.Context, e events.Event) error {
	if e.Type != events.OrderCompleted || e.Order == nil {
		h.log.Debug().Str("type", string(e.Type)).Str("event_id", e.ID).Msg("olay atlandı")
		return nil
	}
	o := *e.Order
	log := h.log.With().Str("order_number", o.OrderNumber).Uint("user_id", o.UserID).Logger()

	var g errgroup.Group
	run := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				log.Error().Err(err).Str("step", name).Msg("❌ bildirim adımı başarısız")
				return err
			}
			return nil
		})
	}

	if h.notifier != nil {
		run("confirmation_email", func() error { return h.notifier.SendOrderConfirmation(ctx, o) })
		if o.IsPaid {
			run("webhook", func() error { return h.notifier.NotifyOrder(ctx, o) })
		} else {
			run("webhook", func() error { return h.notifier.NotifyFreeOrder(ctx, o) })
		}
	}
	if h.roles != nil {
		run("role_grant", func() error { return h.roles.HandleOrderCompleted(ctx, o) })
	}

	// adım hataları yukarıda loglandı
	if g.Wait() == nil {
		log.Info().Bool("paid", o.IsPaid).Msg("📨 sipariş bildirimleri gönderildi")
	}
	return nil
}

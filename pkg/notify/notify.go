/*
Package notify - Commit sonrası yan etkiler

Sipariş tamamlandıktan sonra çalışan, başarısı şart olmayan işler:
sipariş onay e-postası, Discord/Telegram webhook bildirimi ve Discord
rol verme. Hatalar loglanır, çağırana dönmez.
*/
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"digitalstore-backend/pkg/events"
)

type Notifier interface {
	NotifyOrder(ctx context.Context, o events.OrderSummary) error
	NotifyFreeOrder(ctx context.Context, o events.OrderSummary) error
	SendOrderConfirmation(ctx context.Context, o events.OrderSummary) error
}

type RoleGrantor interface {
	HandleOrderCompleted(ctx context.Context, o events.OrderSummary) error
}

// Channels - webhook ve e-posta kanallarını tek Notifier olarak birleştirir.
// nil kanal atlanır.
type Channels struct {
	Webhooks *WebhookNotifier
	Mail     *MailSender
}

func (c Channels) NotifyOrder(ctx context.Context, o events.OrderSummary) error {
	if c.Webhooks == nil {
		return nil
	}
	return c.Webhooks.NotifyOrder(ctx, o)
}

func (c Channels) NotifyFreeOrder(ctx context.Context, o events.OrderSummary) error {
	if c.Webhooks == nil {
		return nil
	}
	return c.Webhooks.NotifyFreeOrder(ctx, o)
}

func (c Channels) SendOrderConfirmation(ctx context.Context, o events.OrderSummary) error {
	if c.Mail == nil {
		return nil
	}
	return c.Mail.SendOrderConfirmation(ctx, o)
}

const requestTimeout = 10 * time.Second

func postJSON(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	code, resp, errs := fiber.Post(url).
		Timeout(requestTimeout).
		ContentType(fiber.MIMEApplicationJSON).
		Body(body).
		Bytes()
	if len(errs) > 0 {
		return errors.Wrapf(errs[0], "POST %s", url)
	}
	if code < 200 || code > 299 {
		return errors.Errorf("POST %s: HTTP %d: %s", url, code, resp)
	}
	return nil
}

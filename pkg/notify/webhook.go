package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/settings"
)

const telegramAPI = "https://api.telegram.org"

// Discord embed renkleri
const (
	colorPaid = 0x2ecc71
	colorFree = 0x3498db
)

// WebhookNotifier - Discord ve Telegram bildirimleri. Adresler her gönderimde
// ayarlardan okunur, boş olan kanal atlanır.
type WebhookNotifier struct {
	settings    settings.Store
	telegramAPI string
}

func NewWebhookNotifier(store settings.Store) *WebhookNotifier {
	return &WebhookNotifier{settings: store, telegramAPI: telegramAPI}
}

// WithTelegramAPI - testlerde sahte Telegram sunucusu için
func (w *WebhookNotifier) WithTelegramAPI(url string) *WebhookNotifier {
	w.telegramAPI = strings.TrimRight(url, "/")
	return w
}

func (w *WebhookNotifier) NotifyOrder(ctx context.Context, o events.OrderSummary) error {
	return w.send(ctx, o, "💰 Yeni Sipariş", colorPaid)
}

func (w *WebhookNotifier) NotifyFreeOrder(ctx context.Context, o events.OrderSummary) error {
	return w.send(ctx, o, "🎁 Ücretsiz Ürün Alındı", colorFree)
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (w *WebhookNotifier) send(ctx context.Context, o events.OrderSummary, title string, color int) error {
	cfg, err := settings.Load(ctx, w.settings)
	if err != nil {
		return err
	}
	n := cfg.Notify

	g := new(errgroup.Group)
	if n.DiscordWebhookURL != "" {
		g.Go(func() error {
			return errors.Wrap(postJSON(n.DiscordWebhookURL, discordPayload(n.SiteName, o, title, color)), "discord")
		})
	}
	if n.TelegramBotToken != "" && n.TelegramChatID != "" {
		g.Go(func() error {
			url := fmt.Sprintf("%s/bot%s/sendMessage", w.telegramAPI, n.TelegramBotToken)
			msg := telegramMessage{ChatID: n.TelegramChatID, Text: telegramText(o, title), ParseMode: "HTML"}
			return errors.Wrap(postJSON(url, msg), "telegram")
		})
	}
	return g.Wait()
}

func discordPayload(site string, o events.OrderSummary, title string, color int) discordMessage {
	fields := []discordField{
		{Name: "Sipariş", Value: o.OrderNumber, Inline: true},
		{Name: "Ürün", Value: o.ProductName, Inline: true},
		{Name: "Kullanıcı", Value: o.Username, Inline: true},
	}
	if o.IsPaid {
		fields = append(fields,
			discordField{Name: "Tutar", Value: o.Amount.StringFixed(2) + " ₺", Inline: true},
			discordField{Name: "Ödeme", Value: o.PaymentMethod, Inline: true},
		)
		if o.DiscountAmount.IsPositive() {
			fields = append(fields, discordField{Name: "İndirim", Value: o.DiscountAmount.StringFixed(2) + " ₺", Inline: true})
		}
		if o.CouponCode != "" {
			fields = append(fields, discordField{Name: "Kupon", Value: o.CouponCode, Inline: true})
		}
	}
	embed := discordEmbed{Title: title, Color: color, Fields: fields}
	if !o.CreatedAt.IsZero() {
		embed.Timestamp = o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return discordMessage{Username: site, Embeds: []discordEmbed{embed}}
}

func telegramText(o events.OrderSummary, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "Sipariş: %s\n", html.EscapeString(o.OrderNumber))
	fmt.Fprintf(&b, "Ürün: %s\n", html.EscapeString(o.ProductName))
	fmt.Fprintf(&b, "Kullanıcı: %s\n", html.EscapeString(o.Username))
	if o.IsPaid {
		fmt.Fprintf(&b, "Tutar: %s ₺ (%s)\n", o.Amount.StringFixed(2), o.PaymentMethod)
	}
	return b.String()
}

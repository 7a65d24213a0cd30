package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/events"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailSender - SMTP üzerinden sipariş onay e-postası. Host boşsa gönderim
// yapılmaz.
type MailSender struct {
	cfg      config.SMTP
	siteName string
	send     sendFunc
}

func NewMailSender(cfg config.SMTP, siteName string) *MailSender {
	return &MailSender{cfg: cfg, siteName: siteName, send: smtp.SendMail}
}

func (m *MailSender) SendOrderConfirmation(_ context.Context, o events.OrderSummary) error {
	if m.cfg.Host == "" || o.Email == "" {
		return nil
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	msg := m.render(o)
	if err := m.send(addr, auth, m.cfg.From, []string{o.Email}, msg); err != nil {
		return errors.Wrapf(err, "smtp %s", addr)
	}
	return nil
}

func (m *MailSender) render(o events.OrderSummary) []byte {
	site := m.siteName
	if site == "" {
		site = "Dijital Mağaza"
	}
	subject := fmt.Sprintf("%s - Siparişiniz alındı (%s)", site, o.OrderNumber)

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", o.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Merhaba %s,\r\n\r\n", o.Username)
	fmt.Fprintf(&b, "%s numaralı siparişiniz tamamlandı.\r\n\r\n", o.OrderNumber)
	fmt.Fprintf(&b, "Ürün: %s\r\n", o.ProductName)
	if o.IsPaid {
		fmt.Fprintf(&b, "Tutar: %s TL\r\n", o.Amount.StringFixed(2))
		if o.DiscountAmount.IsPositive() {
			fmt.Fprintf(&b, "İndirim: %s TL\r\n", o.DiscountAmount.StringFixed(2))
		}
	} else {
		b.WriteString("Tutar: Ücretsiz\r\n")
	}
	fmt.Fprintf(&b, "\r\nTeşekkürler,\r\n%s\r\n", site)
	return b.Bytes()
}

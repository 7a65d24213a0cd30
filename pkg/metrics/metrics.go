/*
Package metrics - Prometheus metrikleri

Gateway'deki http_requests_total sayacına ek olarak settlement hattının
kendi metrikleri. Her servis /metrics üzerinden yayınlar.
*/
package metrics

import (
	"strconv"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Toplam HTTP istek sayısı",
		},
		[]string{"service", "method", "path", "status"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Tamamlanan sipariş settlement sayısı",
		},
		[]string{"method", "status"},
	)

	SettlementFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_failures_total",
			Help: "Reddedilen settlement denemeleri (hata türüne göre)",
		},
		[]string{"kind"},
	)

	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Settlement transaction süresi",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	PaymentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Başlatılan ödeme oturumları",
		},
		[]string{"provider", "result"},
	)

	PaymentCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Sağlayıcı callback sonuçları",
		},
		[]string{"provider", "outcome"},
	)

	ReferralCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Verilen referans kredisi sayısı",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Commit sonrası yayınlanan olaylar",
		},
		[]string{"type", "result"},
	)
)

// Middleware - her isteği http_requests_total'a yazar
func Middleware(service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			// durum kodunun sayaçtan önce yazılması için hata burada işlenir
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				c.Status(fiber.StatusInternalServerError)
			}
			err = nil
		}
		HTTPRequestsTotal.WithLabelValues(
			service,
			c.Method(),
			c.Route().Path,
			strconv.Itoa(c.Response().StatusCode()),
		).Inc()
		return err
	}
}

// Register - /metrics endpoint'i
func Register(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

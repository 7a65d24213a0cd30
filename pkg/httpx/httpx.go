/*
Package httpx - Servislerin ortak Fiber kurulumu

Her servis aynı şekilde ayağa kalkar: hata işleyici, CORS, istek
metrikleri, /metrics ve istek logu.
*/
package httpx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"digitalstore-backend/pkg/apperr"
	"digitalstore-backend/pkg/metrics"
)

func NewApp(service string, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               service,
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH, OPTIONS",
	}))
	app.Use(metrics.Middleware(service))
	app.Use(RequestLogger(log))
	metrics.Register(app)
	return app
}

// ErrorHandler - apperr türünü HTTP durum koduna çevirir.
// 5xx hatalarının detayı kullanıcıya gösterilmez, loglanır.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		kind := apperr.KindOf(err)
		status := apperr.HTTPStatus(kind)
		if status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("❌ istek başarısız")
		}
		return c.Status(status).JSON(fiber.Map{
			"error": apperr.Message(err),
			"code":  kind,
		})
	}
}

func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("istek")
		return err
	}
}

// BadRequest - body parse hataları için
func BadRequest(msg string) error {
	return apperr.New(apperr.Invalid, msg)
}

// Pagination - liste cevaplarındaki sayfalama bilgisi
func Pagination(page, limit int, total int64) fiber.Map {
	totalPages := int64(0)
	if total > 0 && limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return fiber.Map{
		"current_page": page,
		"per_page":     limit,
		"total_items":  total,
		"total_pages":  totalPages,
		"has_next":     int64(page) < totalPages,
		"has_prev":     page > 1,
	}
}

// Run - uygulamayı başlatır, SIGINT/SIGTERM gelince kapatır ve onStop'u çağırır
func Run(app *fiber.App, port string, log zerolog.Logger, onStop ...func()) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Msg("🚀 servis başladı")
		errc <- app.Listen(":" + port)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("🛑 kapanıyor...")
	err := app.ShutdownWithTimeout(10 * time.Second)
	for _, fn := range onStop {
		fn()
	}
	return err
}

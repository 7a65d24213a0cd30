package main

import (
	"context"

	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/notify"
	"digitalstore-backend/pkg/settings"
)

// Kalıcı kuyruk; yeniden başlatmada birikmiş olaylar korunur
const queue = "notification_service"

func main() {
	svc := bootstrap.New("notification-service").WithDatabase().WithSettings().WithRabbit()
	log := svc.Log

	siteName := "Dijital Mağaza"
	if snap, err := settings.Load(context.Background(), svc.Settings); err == nil && snap.Notify.SiteName != "" {
		siteName = snap.Notify.SiteName
	}

	handler := notify.NewHandler(
		notify.Channels{
			Webhooks: notify.NewWebhookNotifier(svc.Settings),
			Mail:     notify.NewMailSender(svc.Config.SMTP, siteName),
		},
		notify.NewHTTPRoleGrantor(svc.Config.RoleServiceURL),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := events.Consume(ctx, svc.AMQP, queue, handler.Handle, log); err != nil {
			log.Fatal().Err(err).Msg("❌ olay tüketimi durdu")
		}
	}()

	app := httpx.NewApp("notification-service", log)
	app.Get("/health", svc.Health.FiberHandler())

	if err := httpx.Run(app, svc.Config.Port, log, cancel, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ notification-service durdu")
	}
}

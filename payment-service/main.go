package main

import (
	"strings"

	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/payment"
)

// providers - sağlayıcıların dönüş adresleri BACKEND_URL / FRONTEND_URL'den türetilir
func providers(cfg config.Config) []payment.Provider {
	backend := strings.TrimRight(cfg.BackendURL, "/")
	frontend := strings.TrimRight(cfg.FrontendURL, "/")
	return []payment.Provider{
		payment.NewPayTR(payment.PayTRConfig{
			OKURL:   frontend + "/payment/success",
			FailURL: frontend + "/payment/fail",
		}),
		payment.NewIyzico(payment.IyzicoConfig{
			CallbackURL: backend + "/payment/iyzico/callback",
		}),
		payment.NewPapara(payment.PaparaConfig{
			NotificationURL: backend + "/payment/papara/callback",
			RedirectURL:     frontend + "/payment/success",
		}),
	}
}

func main() {
	svc := bootstrap.New("payment-service").WithDatabase().WithSettings().WithRabbit().WithPublisher()
	log := svc.Log

	payments := payment.NewService(svc.DB, svc.Settings, ledger.NewMutator(svc.DB), svc.Events, log, providers(svc.Config)...)

	app := httpx.NewApp("payment-service", log)
	app.Get("/health", svc.Health.FiberHandler())
	registerRoutes(app, &handlers{payments: payments, frontendURL: strings.TrimRight(svc.Config.FrontendURL, "/"), log: log}, svc.Config.JWTSecret)

	if err := httpx.Run(app, svc.Config.Port, log, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ payment-service durdu")
	}
}

package main

import (
	"strings"

	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/referral"
)

func main() {
	svc := bootstrap.New("wallet-service").WithDatabase().WithSettings().WithRabbit().WithPublisher()
	log := svc.Log

	mutator := ledger.NewMutator(svc.DB)
	referrals := referral.NewEngine(svc.DB, svc.Settings, mutator, svc.Events, svc.Config.JWTSecret, log)

	app := httpx.NewApp("wallet-service", log)
	app.Get("/health", svc.Health.FiberHandler())
	registerRoutes(app, &handlers{
		ledger:      mutator,
		referrals:   referrals,
		frontendURL: strings.TrimRight(svc.Config.FrontendURL, "/"),
	}, svc.DB, svc.Config.JWTSecret)

	if err := httpx.Run(app, svc.Config.Port, log, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ wallet-service durdu")
	}
}

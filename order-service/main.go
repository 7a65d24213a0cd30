package main

import (
	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/discount"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/ledger"
	"digitalstore-backend/pkg/settlement"
)

func main() {
	svc := bootstrap.New("order-service").WithDatabase().WithSettings().WithRabbit().WithPublisher()
	log := svc.Log

	engine := settlement.NewEngine(svc.DB, discount.NewResolver(), ledger.NewMutator(svc.DB), svc.Events, log)

	app := httpx.NewApp("order-service", log)
	app.Get("/health", svc.Health.FiberHandler())
	registerRoutes(app, &handlers{engine: engine}, svc.DB, svc.Config.JWTSecret)

	if err := httpx.Run(app, svc.Config.Port, log, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ order-service durdu")
	}
}

package main

import (
	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/httpx"
)

func main() {
	svc := bootstrap.New("product-service").WithDatabase()
	log := svc.Log

	app := httpx.NewApp("product-service", log)
	app.Get("/health", svc.Health.FiberHandler())
	registerRoutes(app, &handlers{db: svc.DB, log: log}, svc.Config.JWTSecret)

	if err := httpx.Run(app, svc.Config.Port, log, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ product-service durdu")
	}
}

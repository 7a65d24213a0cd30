package main

import (
	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/httpx"
)

func main() {
	svc := bootstrap.New("api-gateway")
	log := svc.Log

	app := httpx.NewApp("api-gateway", log)
	app.Get("/health", svc.Health.FiberHandler())
	if err := registerRoutes(app, svc.Config.Upstreams); err != nil {
		log.Fatal().Err(err).Msg("❌ route tablosu kurulamadı")
	}

	if err := httpx.Run(app, svc.Config.Port, log, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ api-gateway durdu")
	}
}

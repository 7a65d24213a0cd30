package main

import (
	"context"

	"digitalstore-backend/pkg/bootstrap"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/health"
	"digitalstore-backend/pkg/httpx"
	"digitalstore-backend/pkg/search"
)

const queue = "search_service"

func main() {
	svc := bootstrap.New("search-service").WithDatabase().WithRabbit()
	log := svc.Log

	client, err := search.Connect(svc.Config.ElasticURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Elasticsearch bağlantısı başarısız")
	}
	svc.Health.AddCheck("elasticsearch", health.NewElasticsearchChecker(client))

	index := search.NewOrderIndex(client, log)
	ctx, cancel := context.WithCancel(context.Background())
	if err := index.EnsureIndex(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ orders index'i hazırlanamadı")
	}

	// Başlangıç senkronizasyonu: servis kapalıyken oluşan siparişler
	go func() {
		if n, err := index.SyncFromDB(ctx, svc.DB); err != nil {
			log.Warn().Err(err).Msg("⚠️ başlangıç senkronizasyonu başarısız")
		} else {
			log.Info().Int("count", n).Msg("🔄 siparişler senkronize edildi")
		}
	}()

	go func() {
		if err := events.Consume(ctx, svc.AMQP, queue, index.Handle, log); err != nil {
			log.Fatal().Err(err).Msg("❌ olay tüketimi durdu")
		}
	}()

	app := httpx.NewApp("search-service", log)
	app.Get("/health", svc.Health.FiberHandler())
	registerRoutes(app, &handlers{index: index, db: svc.DB}, svc.Config.JWTSecret)

	if err := httpx.Run(app, svc.Config.Port, log, cancel, svc.Close); err != nil {
		log.Fatal().Err(err).Msg("❌ search-service durdu")
	}
}

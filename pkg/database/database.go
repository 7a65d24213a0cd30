// Package database - PostgreSQL bağlantısı (retry ile) ve migration
package database

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/models"
)

const (
	maxRetries    = 30
	retryInterval = 2 * time.Second
)

// Open - Docker'da Postgres servisten geç ayağa kalkabilir, 30 deneme yapılır
func Open(cfg config.Database, log zerolog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			TranslateError: true,
			Logger:         NewLogger(log, gormlogger.Warn),
		})
		if err == nil {
			break
		}
		log.Warn().Int("attempt", i+1).Int("max", maxRetries).Msg("⏳ PostgreSQL bağlantı bekleniyor...")
		time.Sleep(retryInterval)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres bağlantısı kurulamadı")
	}
	log.Info().Str("db", cfg.Name).Msg("✅ Veritabanına bağlanıldı")
	return db, nil
}

// Migrate - tabloları oluşturur/günceller
func Migrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(models.All()...), "auto migrate")
}

/*
Package bootstrap - Servislerin ortak başlangıç adımları

Config + logger, Postgres (retry + AutoMigrate), Redis önbellekli ayarlar
ve RabbitMQ olay yayıncısı. Bağlanamayan servis log.Fatal ile durur.
*/
package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/config"
	"digitalstore-backend/pkg/database"
	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/health"
	"digitalstore-backend/pkg/logger"
	"digitalstore-backend/pkg/settings"
)

// Service - bir servisin çalışırken ihtiyaç duyduğu bağlantılar
type Service struct {
	Config config.Config
	Log    zerolog.Logger
	Health *health.HealthChecker

	DB       *gorm.DB
	Redis    *redis.Client
	Settings settings.Store
	AMQP     *amqp.Connection
	Events   *events.Dispatcher

	closers []func()
}

// New - config'i yükler, logger'ı kurar
func New(name string) *Service {
	cfg, err := config.Load(name)
	if err != nil {
		l := logger.New(name, "info", false)
		l.Fatal().Err(err).Msg("❌ config yüklenemedi")
	}
	log := logger.New(name, cfg.LogLevel, cfg.LogPretty)
	return &Service{Config: cfg, Log: log, Health: health.NewHealthChecker(name)}
}

func (s *Service) WithDatabase() *Service {
	db, err := database.Open(s.Config.Database, s.Log)
	if err != nil {
		s.Log.Fatal().Err(err).Msg("❌ PostgreSQL'e bağlanılamadı")
	}
	if err := database.Migrate(db); err != nil {
		s.Log.Fatal().Err(err).Msg("❌ migration başarısız")
	}
	if sqlDB, err := db.DB(); err == nil {
		s.Health.AddCheck("postgres", health.NewPostgresChecker(sqlDB))
		s.closers = append(s.closers, func() { sqlDB.Close() })
	}
	s.DB = db
	return s
}

// WithSettings - settings tablosu, Redis önbelleği ile
func (s *Service) WithSettings() *Service {
	s.Redis = redis.NewClient(&redis.Options{Addr: s.Config.RedisAddr})
	s.Health.AddCheck("redis", health.NewRedisChecker(s.Redis))
	s.Settings = settings.NewCachedStore(settings.NewGormStore(s.DB), s.Redis, s.Config.SettingsCacheTTL, s.Log)
	s.closers = append(s.closers, func() { s.Redis.Close() })
	return s
}

func (s *Service) WithRabbit() *Service {
	conn, err := events.Dial(s.Config.RabbitURL, s.Log)
	if err != nil {
		s.Log.Fatal().Err(err).Msg("❌ RabbitMQ'ya bağlanılamadı")
	}
	s.AMQP = conn
	s.Health.AddCheck("rabbitmq", health.NewRabbitMQChecker(conn))
	s.closers = append(s.closers, func() { conn.Close() })
	return s
}

// WithPublisher - commit sonrası olaylar için yayıncı. WithRabbit gerektirir.
func (s *Service) WithPublisher() *Service {
	pub, err := events.NewAMQPPublisher(s.AMQP)
	if err != nil {
		s.Log.Fatal().Err(err).Msg("❌ olay yayıncısı açılamadı")
	}
	s.Events = events.NewDispatcher(pub, s.Log)
	// önce bekleyen yayınlar biter, sonra kanal kapanır
	s.closers = append(s.closers, func() { pub.Close() }, s.Events.Wait)
	return s
}

// Close - bağlantıları açılış sırasının tersine kapatır
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

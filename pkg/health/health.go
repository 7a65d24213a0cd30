/*
Package health - Servisler için health check modülü

Kubernetes liveness/readiness probe'ları /health uç noktasını kullanır.

	checker := health.NewHealthChecker("order-service")
	checker.AddCheck("postgres", health.NewPostgresChecker(sqlDB))
	checker.AddCheck("rabbitmq", health.NewRabbitMQChecker(conn))
	app.Get("/health", checker.FiberHandler())
*/
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckResult - tek bir kontrolün sonucu
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Checks    map[string]CheckResult `json:"checks"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckFunc - tek fonksiyonluk checker
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return result(start, f(ctx), "OK")
}

type HealthChecker struct {
	serviceName string
	timeout     time.Duration
	checkers    map[string]Checker
}

func NewHealthChecker(serviceName string) *HealthChecker {
	return &HealthChecker{
		serviceName: serviceName,
		timeout:     5 * time.Second,
		checkers:    make(map[string]Checker),
	}
}

func (h *HealthChecker) AddCheck(name string, checker Checker) {
	h.checkers[name] = checker
}

// Check - kontroller paralel çalışır, biri bile hatalıysa genel durum unhealthy
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Service:   h.serviceName,
		Checks:    make(map[string]CheckResult, len(h.checkers)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range h.checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			res := checker.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			response.Checks[name] = res
			if res.Status != StatusHealthy {
				response.Status = StatusUnhealthy
			}
		}(name, checker)
	}
	wg.Wait()
	return response
}

func (h *HealthChecker) FiberHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := h.Check(c.UserContext())
		status := http.StatusOK
		if res.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(res)
	}
}

func result(start time.Time, err error, okMsg string) CheckResult {
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Duration: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: okMsg, Duration: time.Since(start)}
}

type PostgresChecker struct {
	db *sql.DB
}

// NewPostgresChecker - GORM'dan db.DB() ile alınan *sql.DB
func NewPostgresChecker(db *sql.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (p *PostgresChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if p.db == nil {
		return result(start, errors.New("database connection is nil"), "")
	}
	return result(start, errors.Wrap(p.db.PingContext(ctx), "ping failed"), "database connection OK")
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if r.client == nil {
		return result(start, errors.New("redis client is nil"), "")
	}
	return result(start, errors.Wrap(r.client.Ping(ctx).Err(), "ping failed"), "redis connection OK")
}

type RabbitMQChecker struct {
	conn *amqp.Connection
}

func NewRabbitMQChecker(conn *amqp.Connection) *RabbitMQChecker {
	return &RabbitMQChecker{conn: conn}
}

func (r *RabbitMQChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	switch {
	case r.conn == nil:
		return result(start, errors.New("rabbitmq connection is nil"), "")
	case r.conn.IsClosed():
		return result(start, errors.New("rabbitmq connection is closed"), "")
	}
	return result(start, nil, "rabbitmq connection OK")
}

type ElasticsearchChecker struct {
	client *elastic.Client
}

func NewElasticsearchChecker(client *elastic.Client) *ElasticsearchChecker {
	return &ElasticsearchChecker{client: client}
}

func (e *ElasticsearchChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if e.client == nil {
		return result(start, errors.New("elasticsearch client is nil"), "")
	}
	res, err := e.client.ClusterHealth().Do(ctx)
	if err != nil {
		return result(start, errors.Wrap(err, "cluster health"), "")
	}
	if res.Status == "red" {
		return result(start, errors.New("cluster status red"), "")
	}
	return result(start, nil, "elasticsearch cluster "+res.Status)
}

/*
Package search - Elasticsearch sipariş indeksi

search-service settlement olaylarını dinleyip siparişleri "orders"
indeksine yazar; admin paneli buradan arama yapar.
*/
package search

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"digitalstore-backend/pkg/events"
	"digitalstore-backend/pkg/models"
)

const IndexName = "orders"

const mapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	},
	"mappings": {
		"properties": {
			"order_id": { "type": "long" },
			"order_number": { "type": "keyword" },
			"user_id": { "type": "long" },
			"username": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"email": { "type": "keyword" },
			"product_id": { "type": "long" },
			"product_name": { "type": "text" },
			"amount": { "type": "scaled_float", "scaling_factor": 100 },
			"discount_amount": { "type": "scaled_float", "scaling_factor": 100 },
			"payment_method": { "type": "keyword" },
			"status": { "type": "keyword" },
			"coupon_code": { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

// OrderDocument - indekste tutulan sipariş görünümü
type OrderDocument struct {
	OrderID        uint            `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         uint            `json:"user_id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	ProductID      uint            `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Amount         decimal.Decimal `json:"amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Status         string          `json:"status"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func FromSummary(s events.OrderSummary) OrderDocument {
	return OrderDocument{
		OrderID:        s.OrderID,
		OrderNumber:    s.OrderNumber,
		UserID:         s.UserID,
		Username:       s.Username,
		Email:          s.Email,
		ProductID:      s.ProductID,
		ProductName:    s.ProductName,
		Amount:         s.Amount,
		DiscountAmount: s.DiscountAmount,
		PaymentMethod:  s.PaymentMethod,
		Status:         s.Status,
		CouponCode:     s.CouponCode,
		CreatedAt:      s.CreatedAt,
	}
}

type Query struct {
	Text   string
	Status string
	UserID uint
	Page   int
	Limit  int
}

type Result struct {
	Orders     []OrderDocument `json:"orders"`
	TotalItems int64           `json:"total_items"`
	Page       int             `json:"current_page"`
	Limit      int             `json:"per_page"`
}

type OrderIndex struct {
	client *elastic.Client
	index  string
	log    zerolog.Logger
}

// Connect - Elasticsearch'e bağlanır (Docker başlaması zaman alabilir)
func Connect(url string, log zerolog.Logger) (*elastic.Client, error) {
	var (
		client *elastic.Client
		err    error
	)
	for i := 0; i < 10; i++ {
		client, err = elastic.NewClient(
			elastic.SetURL(url),
			elastic.SetSniff(false),
			elastic.SetHealthcheck(false),
		)
		if err == nil {
			log.Info().Msg("🚀 Elasticsearch bağlantısı başarılı")
			return client, nil
		}
		log.Warn().Int("attempt", i+1).Msg("⏳ Elasticsearch'e bağlanılamadı, tekrar deneniyor...")
		time.Sleep(2 * time.Second)
	}
	return nil, errors.Wrap(err, "elasticsearch bağlantısı")
}

func NewOrderIndex(client *elastic.Client, log zerolog.Logger) *OrderIndex {
	return &OrderIndex{client: client, index: IndexName, log: log}
}

func (x *OrderIndex) EnsureIndex(ctx context.Context) error {
	exists, err := x.client.IndexExists(x.index).Do(ctx)
	if err != nil {
		return errors.Wrap(err, "index exists")
	}
	if exists {
		return nil
	}
	if _, err := x.client.CreateIndex(x.index).BodyString(mapping).Do(ctx); err != nil {
		return errors.Wrap(err, "create index")
	}
	x.log.Info().Str("index", x.index).Msg("📦 index oluşturuldu")
	return nil
}

// IndexOrder - aynı sipariş tekrar gelirse (pending → completed) üzerine yazar
func (x *OrderIndex) IndexOrder(ctx context.Context, doc OrderDocument) error {
	_, err := x.client.Index().
		Index(x.index).
		Id(strconv.FormatUint(uint64(doc.OrderID), 10)).
		BodyJson(doc).
		Do(ctx)
	return errors.Wrapf(err, "index order %s", doc.OrderNumber)
}

// Handle - AMQP consumer'ı için events.Handler
func (x *OrderIndex) Handle(ctx context.Context, e events.Event) error {
	if e.Order == nil {
		return nil
	}
	return x.IndexOrder(ctx, FromSummary(*e.Order))
}

func (x *OrderIndex) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	query := elastic.NewBoolQuery()
	if q.Text != "" {
		query = query.Must(elastic.NewMultiMatchQuery(q.Text, "order_number", "username", "email", "product_name", "coupon_code").
			Fuzziness("AUTO"))
	}
	if q.Status != "" {
		query = query.Filter(elastic.NewTermQuery("status", q.Status))
	}
	if q.UserID != 0 {
		query = query.Filter(elastic.NewTermQuery("user_id", q.UserID))
	}

	res, err := x.client.Search().
		Index(x.index).
		Query(query).
		Sort("created_at", false).
		From((q.Page - 1) * q.Limit).
		Size(q.Limit).
		TrackTotalHits(true).
		Do(ctx)
	out := &Result{Orders: []OrderDocument{}, Page: q.Page, Limit: q.Limit}
	if elastic.IsNotFound(err) {
		return out, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "search orders")
	}

	out.TotalItems = res.TotalHits()
	for _, hit := range res.Hits.Hits {
		var doc OrderDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			x.log.Warn().Err(err).Str("id", hit.Id).Msg("bozuk doküman atlandı")
			continue
		}
		out.Orders = append(out.Orders, doc)
	}
	return out, nil
}

func (x *OrderIndex) Count(ctx context.Context) (int64, error) {
	n, err := x.client.Count(x.index).Do(ctx)
	return n, errors.Wrap(err, "count orders")
}

// SyncFromDB - tüm siparişleri veritabanından toplu indeksler
func (x *OrderIndex) SyncFromDB(ctx context.Context, db *gorm.DB) (int, error) {
	type row struct {
		models.Order
		Username    string
		Email       string
		ProductName string
	}
	var rows []row
	err := db.WithContext(ctx).Table("orders").
		Select("orders.*, users.username, users.email, products.name AS product_name").
		Joins("LEFT JOIN users ON users.id = orders.user_id").
		Joins("LEFT JOIN products ON products.id = orders.product_id").
		Where("orders.deleted_at IS NULL").
		Scan(&rows).Error
	if err != nil {
		return 0, errors.Wrap(err, "load orders")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	bulk := x.client.Bulk()
	for _, r := range rows {
		doc := OrderDocument{
			OrderID:        r.ID,
			OrderNumber:    r.OrderNumber,
			UserID:         r.UserID,
			Username:       r.Username,
			Email:          r.Email,
			ProductID:      r.ProductID,
			ProductName:    r.ProductName,
			Amount:         r.Amount,
			DiscountAmount: r.DiscountAmount,
			PaymentMethod:  r.PaymentMethod,
			Status:         r.Status,
			CreatedAt:      r.CreatedAt,
		}
		bulk = bulk.Add(elastic.NewBulkIndexRequest().
			Index(x.index).
			Id(strconv.FormatUint(uint64(r.ID), 10)).
			Doc(doc))
	}
	res, err := bulk.Do(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "bulk index")
	}
	x.log.Info().Int("indexed", len(res.Indexed())).Msg("✅ senkronizasyon tamamlandı")
	return len(res.Indexed()), nil
}

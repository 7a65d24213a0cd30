package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"digitalstore-backend/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Dispatcher - olayları arka planda yayınlar. Hata loglanır ve yutulur;
// çağıran hiçbir zaman beklemez ve hata görmez. Yeniden deneme kuyruğu yok.
type Dispatcher struct {
	pub Publisher
	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewDispatcher(pub Publisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, log: log}
}

func (d *Dispatcher) Emit(evts ...Event) {
	if d == nil || d.pub == nil {
		return
	}
	for _, e := range evts {
		d.wg.Add(1)
		go func(e Event) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error().Interface("panic", r).Str("event_id", e.ID).Msg("olay yayını panikledi")
				}
			}()

			// İstek context'i iptal olmuş olabilir, yayın ondan bağımsız
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()

			if err := d.pub.Publish(ctx, e); err != nil {
				metrics.EventsPublishedTotal.WithLabelValues(string(e.Type), "error").Inc()
				d.log.Error().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("❌ olay yayınlanamadı")
				return
			}
			metrics.EventsPublishedTotal.WithLabelValues(string(e.Type), "ok").Inc()
		}(e)
	}
}

// Wait - kapanışta ve testlerde bekleyen yayınları bitirir
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Recorder - bellekte tutan Publisher
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

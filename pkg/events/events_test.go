package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestNewOrderEventType(t *testing.T) {
	done := NewOrderEvent(OrderSummary{OrderNumber: "ORD1", Status: "completed"})
	if done.Type != OrderCompleted || done.ID == "" {
		t.Errorf("completed event = %+v", done)
	}
	pending := NewOrderEvent(OrderSummary{OrderNumber: "ORD2", Status: "pending"})
	if pending.Type != OrderPending {
		t.Errorf("pending type = %s", pending.Type)
	}
	if done.ID == pending.ID {
		t.Error("event ids must be unique")
	}
}

func TestEventJSON(t *testing.T) {
	e := NewPaymentEvent(PaymentSummary{Reference: "abc", Provider: "paytr", Amount: decimal.RequireFromString("100.50"), Status: "completed"})
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Type != PaymentCompleted || back.Payment == nil || !back.Payment.Amount.Equal(e.Payment.Amount) {
		t.Errorf("back = %+v", back)
	}
	if back.Order != nil {
		t.Error("order should be omitted")
	}
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	rec := &Recorder{Err: errors.New("broker down")}
	d := NewDispatcher(rec, zerolog.Nop())

	d.Emit(NewReferralEvent(ReferralSummary{ReferralID: 1}))
	d.Wait()

	if len(rec.Events()) != 0 {
		t.Error("failed publish should record nothing")
	}
}

func TestDispatcherDelivers(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, zerolog.Nop())

	d.Emit(
		NewOrderEvent(OrderSummary{Status: "completed"}),
		NewOrderEvent(OrderSummary{Status: "pending"}),
	)
	d.Wait()

	if got := len(rec.OfType(OrderCompleted)); got != 1 {
		t.Errorf("completed = %d", got)
	}
	if got := len(rec.Events()); got != 2 {
		t.Errorf("events = %d", got)
	}
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Emit(NewOrderEvent(OrderSummary{}))
	d.Wait()
}

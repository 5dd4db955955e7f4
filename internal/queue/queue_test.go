package queue

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
)

func reservation() model.Reservation {
	return model.Reservation{
		ID:           "r1",
		CustomerName: "Jo Smith",
		Email:        "jo@example.com",
		Resource:     model.FullCourt,
		Date:         "2024-03-04",
		Time:         "09:00 AM - 10:00 AM",
		PriceCents:   15000,
		Status:       model.StatusPendingApproval,
	}
}

func TestRender_Recipients(t *testing.T) {
	r := Renderer{AdminEmail: "admin@facility.local"}
	ev := NewReservationEvent(string(lifecycle.EventAdminNewRequest), reservation(), time.Now())

	msg := r.Render(ev)
	assert.Equal(t, "admin@facility.local", msg.To)
	assert.Contains(t, msg.Body, "$150.00")

	ev.Event = string(lifecycle.EventConfirmed)
	msg = r.Render(ev)
	assert.Equal(t, "jo@example.com", msg.To)
	assert.Contains(t, msg.Body, "2024-03-04")
}

func TestConsumerHandle(t *testing.T) {
	var got []Message
	c := &Consumer{
		Renderer: Renderer{AdminEmail: "admin@facility.local"},
		Sink: func(_ context.Context, m Message) error {
			got = append(got, m)
			return nil
		},
		Log: logrus.New(),
	}
	body, err := json.Marshal(NewReservationEvent(string(lifecycle.EventDeclined), reservation(), time.Now()))
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), body))
	require.Len(t, got, 1)
	assert.Equal(t, "jo@example.com", got[0].To)

	assert.Error(t, c.handle(context.Background(), []byte("{")))
}

func TestLogNotifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	n := LogNotifier{Log: log, Renderer: Renderer{AdminEmail: "admin@facility.local"}}

	require.NoError(t, n.Notify(context.Background(), lifecycle.EventAdminNewRequest, reservation()))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "admin@facility.local", hook.LastEntry().Data["to"])
}

func TestRender_PaymentConflict(t *testing.T) {
	r := Renderer{AdminEmail: "admin@facility.local"}
	res := reservation()
	res.PaymentRef = "bk_123"
	res.Status = model.StatusCancelled

	msg := r.Render(NewReservationEvent(string(lifecycle.EventAdminPaymentConflict), res, time.Now()))
	assert.Equal(t, "admin@facility.local", msg.To)
	assert.Contains(t, msg.Body, "bk_123")

	msg = r.Render(NewReservationEvent(string(lifecycle.EventSlotUnavailable), res, time.Now()))
	assert.Equal(t, "jo@example.com", msg.To)
	assert.Contains(t, msg.Body, "$150.00")
}

func TestPublisher_DialTimeout(t *testing.T) {
	assert.Equal(t, DefaultDialTimeout, NewPublisher("amqp://localhost", logrus.New()).DialTimeout)

	// a broker that accepts the connection and never answers the handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	log, _ := test.NewNullLogger()
	p := &Publisher{URL: "amqp://guest:guest@" + ln.Addr().String() + "/", DialTimeout: 200 * time.Millisecond, Log: log}

	start := time.Now()
	err = p.Notify(context.Background(), lifecycle.EventConfirmed, reservation())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

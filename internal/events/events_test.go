package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/groblegark/footfall/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSPublisher_PublishesCycleLogged(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("footfall.>", msgs)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flushing subscription: %v", err)
	}

	record := &model.CycleRecord{
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RunID:           "run-abc",
		Cycle:           7,
		TransientCount:  2,
		TokensTransient: []string{"aaaa", "bbbb"},
	}
	if err := pub.Publish(context.Background(), TopicCycleLogged, CycleLogged{Record: record}); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-msgs:
		if msg.Subject != TopicCycleLogged {
			t.Errorf("subject = %q, want %q", msg.Subject, TopicCycleLogged)
		}
		var got CycleLogged
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshaling payload: %v", err)
		}
		if got.Record.Cycle != 7 || got.Record.TransientCount != 2 {
			t.Errorf("payload = %+v", got.Record)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = &NoopPublisher{}
	if err := p.Publish(context.Background(), TopicSaltRotated, SaltRotated{}); err != nil {
		t.Errorf("noop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("noop close: %v", err)
	}
}

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	sinkQueueSize = 4096
	sinkBatchSize = 50
	sinkDrainTick = 2 * time.Second
)

// Entry is the document shape stored by MongoSink.
type Entry struct {
	Time       time.Time `bson:"time"`
	Level      string    `bson:"level"`
	Msg        string    `bson:"msg"`
	RequestID  string    `bson:"request_id,omitempty"`
	ExternalID string    `bson:"external_id,omitempty"`
	Attrs      bson.M    `bson:"attrs,omitempty"`
}

type inserter interface {
	InsertMany(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// sinkCore is shared by every handler derived through WithAttrs/WithGroup.
type sinkCore struct {
	col       inserter
	client    *mongo.Client
	queue     chan Entry
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// MongoSink is a slog.Handler that batches records at or above a minimum
// level into a MongoDB collection. Enqueueing never blocks; records are
// dropped when the queue is full.
type MongoSink struct {
	core   *sinkCore
	min    slog.Level
	attrs  []slog.Attr
	prefix string
}

// DialMongoSink connects to uri and returns a sink writing to db/collection.
// The caller must Close it.
func DialMongoSink(uri, db, collection string, min slog.Level) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second).
		SetMaxPoolSize(10))
	if err != nil {
		return nil, fmt.Errorf("logger: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("logger: mongo ping: %w", err)
	}

	col := client.Database(db).Collection(collection)
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "external_id", Value: 1}}},
	})

	s := newMongoSink(col, min)
	s.core.client = client
	return s, nil
}

func newMongoSink(col inserter, min slog.Level) *MongoSink {
	core := &sinkCore{
		col:     col,
		queue:   make(chan Entry, sinkQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go core.drain()
	return &MongoSink{core: core, min: min}
}

func (s *MongoSink) Enabled(_ context.Context, l slog.Level) bool { return l >= s.min }

func (s *MongoSink) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Time: r.Time, Level: r.Level.String(), Msg: r.Message, Attrs: bson.M{}}

	put := func(a slog.Attr) {
		switch a.Key {
		case "request_id":
			e.RequestID = a.Value.String()
		case "external_id":
			e.ExternalID = a.Value.String()
		default:
			e.Attrs[s.prefix+a.Key] = a.Value.Resolve().Any()
		}
	}
	for _, a := range s.attrs {
		put(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(a)
		return true
	})
	if len(e.Attrs) == 0 {
		e.Attrs = nil
	}

	select {
	case s.core.queue <- e:
	default:
	}
	return nil
}

func (s *MongoSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *s
	out.attrs = append(append([]slog.Attr(nil), s.attrs...), attrs...)
	return &out
}

func (s *MongoSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	out := *s
	out.prefix = s.prefix + name + "."
	return &out
}

// Close flushes the queue and disconnects. Safe to call more than once.
func (s *MongoSink) Close() {
	s.core.closeOnce.Do(func() {
		close(s.core.done)
		<-s.core.stopped
		if s.core.client != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.core.client.Disconnect(ctx)
		}
	})
}

func (c *sinkCore) drain() {
	defer close(c.stopped)

	ticker := time.NewTicker(sinkDrainTick)
	defer ticker.Stop()

	batch := make([]interface{}, 0, sinkBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = c.col.InsertMany(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-c.queue:
			batch = append(batch, e)
			if len(batch) >= sinkBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			for len(c.queue) > 0 {
				batch = append(batch, <-c.queue)
			}
			flush()
			return
		}
	}
}

// ── Fan-out ──────────────────────────────────────────────────────────────────

// MultiHandler sends each record to every handler that accepts its level.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []string
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("logger: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

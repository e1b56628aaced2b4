package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamConfig names the stream and durable consumer to read.
type JetStreamConfig struct {
	Stream   string
	Subjects []string
	Durable  string
	AckWait  time.Duration
}

// JetStream reads JSON event envelopes from a durable JetStream consumer.
// A message is acked only after the handler returns, so a crash redelivers
// it and the processor's checkpoint drops the duplicate.
type JetStream struct {
	js     jetstream.JetStream
	cfg    JetStreamConfig
	logger *slog.Logger
}

// NewJetStream creates a JetStream source.
func NewJetStream(js jetstream.JetStream, cfg JetStreamConfig, logger *slog.Logger) *JetStream {
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	return &JetStream{
		js:     js,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "feed_jetstream")),
	}
}

// ConnectNATS dials url and returns the connection with a JetStream handle.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("feed: jetstream: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the configured stream.
func (f *JetStream) EnsureStream(ctx context.Context) error {
	_, err := f.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      f.cfg.Stream,
		Subjects:  f.cfg.Subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("feed: ensure stream %s: %w", f.cfg.Stream, err)
	}
	return nil
}

func (f *JetStream) Run(ctx context.Context, h Handler) error {
	cons, err := f.js.CreateOrUpdateConsumer(ctx, f.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       f.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       f.cfg.AckWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		// One in flight keeps delivery in stream order.
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("feed: consumer %s: %w", f.cfg.Durable, err)
	}
	iter, err := cons.Messages()
	if err != nil {
		return fmt.Errorf("feed: consume %s: %w", f.cfg.Durable, err)
	}
	stop := context.AfterFunc(ctx, iter.Stop)
	defer stop()
	defer iter.Stop()

	f.logger.Info("jetstream consumer started",
		slog.String("stream", f.cfg.Stream),
		slog.String("durable", f.cfg.Durable),
	)
	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			return fmt.Errorf("feed: next message: %w", err)
		}
		ev, err := decodeEnvelope(msg.Data())
		if err != nil {
			f.logger.Error("terminating malformed message",
				slog.String("subject", msg.Subject()),
				slog.String("error", err.Error()),
			)
			_ = msg.Term()
			continue
		}
		if err := h(ctx, ev); err != nil {
			_ = msg.Nak()
			return err
		}
		if err := msg.Ack(); err != nil {
			return fmt.Errorf("feed: ack: %w", err)
		}
	}
}

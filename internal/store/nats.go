package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiliankoe/georacer/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	ReconnectWait time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GEORACER_LOBBIES",
		SubjectPrefix: "georacer.lobbies",
		MaxAge:        24 * time.Hour,
		ReconnectWait: 2 * time.Second,
	}
}

// Subject is where snapshots of lobby id are published.
func (c JetStreamConfig) Subject(id string) string {
	return c.SubjectPrefix + "." + id
}

// JetStream publishes snapshots to a stream that keeps only the newest message per lobby.
type JetStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config JetStreamConfig
}

func NewJetStream(ctx context.Context, cfg JetStreamConfig) (*JetStream, error) {
	opts := []nats.Option{
		nats.Name("georacer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              cfg.StreamName,
		Description:       "Latest snapshot of every georacer lobby",
		Subjects:          []string{cfg.SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            cfg.MaxAge,
		Storage:           jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	log.Info().Str("stream", cfg.StreamName).Msg("snapshot stream ready")
	return &JetStream{nc: nc, js: js, stream: stream, config: cfg}, nil
}

func (j *JetStream) Put(ctx context.Context, id string, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = j.js.PublishMsg(ctx, &nats.Msg{
		Subject: j.config.Subject(id),
		Data:    data,
		Header: nats.Header{
			"Lobby-ID": []string{id},
			"Phase":    []string{string(snap.Phase.Kind)},
		},
	}, jetstream.WithExpectStream(j.config.StreamName))
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Get reads the last snapshot published for id.
func (j *JetStream) Get(ctx context.Context, id string) (game.Snapshot, error) {
	msg, err := j.stream.GetLastMsgForSubject(ctx, j.config.Subject(id))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return game.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

func (j *JetStream) Close() error {
	if j.nc != nil {
		j.nc.Close()
	}
	return nil
}

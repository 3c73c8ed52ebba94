package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/config"
)

// NATS wraps a NATS connection used by the nats notifier.
type NATS struct {
	Conn *nats.Conn
}

// NewNATS connects to the configured server.
func NewNATS(cfg config.NATSConfig, appName string, logger *zap.Logger) (*NATS, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS_URL is required when NOTIFY_DRIVER=nats")
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return &NATS{Conn: conn}, nil
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() {
	if n == nil || n.Conn == nil {
		return
	}
	if err := n.Conn.Drain(); err != nil {
		n.Conn.Close()
	}
}

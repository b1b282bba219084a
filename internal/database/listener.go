package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// EventHandler receives each valid guild event
type EventHandler func(event *models.GuildEvent)

// Listener forwards PostgreSQL NOTIFY payloads on one channel to a handler
type Listener struct {
	url     string
	channel string
	handler EventHandler
	logger  *zap.Logger
}

// NewListener creates a listener for channel on the database at url
func NewListener(url, channel string, handler EventHandler, logger *zap.Logger) *Listener {
	return &Listener{
		url:     url,
		channel: channel,
		handler: handler,
		logger:  logger,
	}
}

// Run listens until ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.url, listenerMinReconnect, listenerMaxReconnect, l.reportEvent)
	defer func() {
		if err := listener.Close(); err != nil {
			l.logger.Warn("failed to close listener", zap.Error(err))
		}
	}()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	l.logger.Info("listening for guild events", zap.String("channel", l.channel))

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent while disconnected are lost
			if n == nil {
				continue
			}
			l.dispatch(n.Extra)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn("listener ping failed", zap.Error(err))
			}
		}
	}
}

func (l *Listener) dispatch(payload string) {
	event, err := models.ParseGuildEvent([]byte(payload))
	if err != nil {
		l.logger.Warn("dropping invalid guild event", zap.Error(err))
		return
	}
	l.handler(event)
}

func (l *Listener) reportEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Debug("listener connected")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("listener connection attempt failed", zap.Error(err))
	}
}

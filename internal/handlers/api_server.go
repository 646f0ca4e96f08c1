// internal/handlers/api_server.go
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/cache"
	"github.com/lucasreed/incognito/internal/lobby"
	"github.com/lucasreed/incognito/internal/match"
	"github.com/lucasreed/incognito/internal/store"
	"github.com/sirupsen/logrus"
)

// APIServer bundles the coordinators and the subscription registry behind
// the HTTP and WebSocket handlers.
type APIServer struct {
	Store     store.Store
	Registry  *lobby.Registry
	Notifier  *lobby.Notifier
	Lobby     *match.LobbyCoordinator
	Lifecycle *match.LifecycleCoordinator
	Logger    *logrus.Logger
}

// NewAPIServer wires the registry, notifier and coordinators over the given
// store. Every broadcast is mirrored to the Redis audit queue when Redis is
// connected.
func NewAPIServer(st store.Store, logger *logrus.Logger) *APIServer {
	registry := lobby.NewRegistry()
	notifier := lobby.NewNotifier(registry, logger, auditEvents(logger))
	return &APIServer{
		Store:     st,
		Registry:  registry,
		Notifier:  notifier,
		Lobby:     match.NewLobbyCoordinator(st, registry, notifier, logger),
		Lifecycle: match.NewLifecycleCoordinator(st, notifier, logger),
		Logger:    logger,
	}
}

// auditEvents mirrors broadcast events onto the Redis queue, best effort,
// off the broadcast path.
func auditEvents(logger *logrus.Logger) lobby.AuditFunc {
	return func(matchID uuid.UUID, event map[string]interface{}) {
		if cache.Rdb == nil {
			return
		}
		eventType, _ := event["type"].(string)
		record := cache.MatchEventRecord{
			MatchID:   matchID,
			EventType: eventType,
			Payload:   event,
			Timestamp: time.Now().UnixMilli(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cache.PublishMatchEvent(ctx, record); err != nil {
				logger.Warnf("failed to publish match event: %v", err)
			}
		}()
	}
}

// internal/handlers/match_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/auth"
	"github.com/lucasreed/incognito/internal/lobby"
	"github.com/lucasreed/incognito/internal/middleware"
	"github.com/sirupsen/logrus"
)

// writeTimeout bounds a single outbound delivery so one unresponsive
// client cannot stall its pump.
const writeTimeout = 5 * time.Second

// MatchWSHandler upgrades the connection and registers it as a lobby
// subscriber for the match in the URL: /match/ws/{matchId}. The socket is
// push-only; the read pump exists to detect client closure (and an
// explicit "unsubscribe" message) so the handle is pruned proactively.
func MatchWSHandler(logger *logrus.Logger, s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/match/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing match_id", http.StatusBadRequest)
			return
		}
		matchID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid match_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		userID, err := auth.EnsureIdentity(w, r)
		if err != nil {
			logger.Warnf("identity bootstrap failed for match %s: %v", matchID, err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		sub := lobby.NewSubscriber(userID, cancel)

		if err := s.Lobby.SubscribeLobby(r.Context(), matchID, sub); err != nil {
			logger.Warnf("subscribe failed for match %s: %v", matchID, err)
			c.Close(InvalidMatchIDError, "match does not exist")
			return
		}

		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		go subscriberWritePump(ctx, c, sub, logger)
		readErr := subscriberReadPump(ctx, c, sub, logger, matchID)

		s.Lobby.UnsubscribeLobby(matchID, sub.ID)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// subscriberReadPump blocks until the client closes, faults, or asks to
// unsubscribe. Returns nil for a clean closure.
func subscriberReadPump(ctx context.Context, c *websocket.Conn, sub *lobby.Subscriber, logger *logrus.Logger, matchID uuid.UUID) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			logger.Warnf("match %s: read error for subscriber %s: %v", matchID, sub.ID, err)
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("match %s: invalid json from subscriber %s: %v", matchID, sub.ID, err)
			continue
		}
		if action, _ := packet["type"].(string); action == "unsubscribe" {
			return nil
		}
	}
}

// subscriberWritePump drains the handle's outbound channel onto the socket
// and keeps the connection alive with periodic pings.
func subscriberWritePump(ctx context.Context, c *websocket.Conn, sub *lobby.Subscriber, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for subscriber %s: %v", sub.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for subscriber %s: %v", sub.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping subscriber %s, assuming disconnect: %v", sub.ID, err)
				return
			}
		}
	}
}

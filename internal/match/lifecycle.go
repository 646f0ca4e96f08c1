// internal/match/lifecycle.go
package match

import (
	"context"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/lobby"
	"github.com/lucasreed/incognito/internal/store"
	"github.com/sirupsen/logrus"
)

// LifecycleCoordinator orchestrates the match state machine: starting,
// ending, and the in-game secret-character picks. Same contract as the
// lobby coordinator: commit first, notify once, never let a notification
// outcome leak into the operation result.
type LifecycleCoordinator struct {
	store    store.Store
	notifier *lobby.Notifier
	log      *logrus.Logger
}

// NewLifecycleCoordinator wires the coordinator.
func NewLifecycleCoordinator(st store.Store, notifier *lobby.Notifier, log *logrus.Logger) *LifecycleCoordinator {
	return &LifecycleCoordinator{store: st, notifier: notifier, log: log}
}

func (c *LifecycleCoordinator) infra(op string, err error) *Error {
	e := infraError(err)
	c.log.WithFields(logrus.Fields{
		"op":   op,
		"kind": store.Classify(err),
	}).Errorf("store fault: %v", err)
	return e
}

// StartMatch transitions the match from Lobby to InProgress.
func (c *LifecycleCoordinator) StartMatch(ctx context.Context, matchID uuid.UUID) error {
	if matchID == uuid.Nil {
		return validationError("missing_id", "match id is required")
	}

	outcome, err := c.store.StartMatch(ctx, matchID)
	if err != nil {
		return c.infra("start_match", err)
	}
	if outcome != store.Success {
		return outcomeError(outcome)
	}

	c.log.WithField("match_id", matchID).Info("match started")
	c.notifier.GameStarted(matchID)
	return nil
}

// EndMatch transitions the match from InProgress to Completed with the
// given winner and announces the result.
func (c *LifecycleCoordinator) EndMatch(ctx context.Context, matchID, winnerUserID uuid.UUID) error {
	if matchID == uuid.Nil || winnerUserID == uuid.Nil {
		return validationError("missing_id", "match id and winner user id are required")
	}

	outcome, err := c.store.EndMatch(ctx, matchID, winnerUserID)
	if err != nil {
		return c.infra("end_match", err)
	}
	if outcome != store.Success {
		return outcomeError(outcome)
	}

	c.log.WithFields(logrus.Fields{
		"match_id": matchID,
		"winner":   winnerUserID,
	}).Info("match ended")
	c.notifier.GameEnded(matchID, winnerUserID)
	return nil
}

// ChooseSecretCharacter records the caller's hidden pick and, when it was
// the last outstanding one, announces that all picks are in.
func (c *LifecycleCoordinator) ChooseSecretCharacter(ctx context.Context, matchID, userID, characterID uuid.UUID) error {
	if matchID == uuid.Nil || userID == uuid.Nil {
		return validationError("missing_id", "match id and user id are required")
	}
	if characterID == uuid.Nil {
		return validationError("missing_character_id", "character id is required")
	}

	outcome, err := c.store.ChooseSecretCharacter(ctx, matchID, userID, characterID)
	if err != nil {
		return c.infra("choose_secret_character", err)
	}
	if outcome != store.Success {
		return outcomeError(outcome)
	}

	c.notifier.SecretCharacterChosen(matchID, userID)

	allChosen, err := c.store.AllSecretCharactersChosen(ctx, matchID)
	if err != nil {
		// The pick committed; a failed completeness read only costs the
		// follow-up event.
		c.log.Warnf("choose_secret_character: completeness check failed for match %s: %v", matchID, err)
		return nil
	}
	if allChosen {
		c.notifier.AllSecretCharactersChosen(matchID)
	}
	return nil
}

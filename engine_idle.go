package vapor

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// PlayGames marks the given apps as in play on the live session. The
// platform treats the account as playing them until StopPlaying or until
// the session ends, which is what accrues playtime. An empty list is
// equivalent to StopPlaying.
func (e *Engine) PlayGames(ctx context.Context, appIDs []uint32) error {
	if e == nil {
		return ErrEngineNotReady
	}

	client, err := e.liveClient()
	if err != nil {
		return err
	}

	if err := client.PlayGames(ctx, appIDs); err != nil {
		return remoteErr("play games", err)
	}

	e.mu.Lock()
	e.idling = append([]uint32(nil), appIDs...)
	e.mu.Unlock()

	e.emitAudit(ctx, auditEventIdleStateChanged, true, "", "", uuid.NewString(), nil, func() map[string]string {
		return map[string]string{"app_count": strconv.Itoa(len(appIDs))}
	})
	return nil
}

// StopPlaying clears the in-play state on the live session.
func (e *Engine) StopPlaying(ctx context.Context) error {
	return e.PlayGames(ctx, nil)
}

// Idling returns a copy of the app IDs currently marked as in play.
func (e *Engine) Idling() []uint32 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.idling) == 0 {
		return nil
	}
	return append([]uint32(nil), e.idling...)
}

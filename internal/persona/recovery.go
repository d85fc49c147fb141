package persona

import (
	"context"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/task"
)

// NoDealRecovery turns PRICE_UNAVAILABLE into a successful "no deal found"
// result. Other failures keep their normal path.
func NoDealRecovery() task.RecoveryHandler {
	return task.RecoveryFunc(func(_ context.Context, t *task.Task, cause error) (map[string]any, error) {
		if !xerrors.HasCode(cause, xerrors.CodePriceUnavailable) {
			return nil, nil
		}
		return map[string]any{
			"status":     "no_deal",
			"message":    "No deal found",
			"persona":    t.Persona,
			"error_code": string(xerrors.CodePriceUnavailable),
		}, nil
	})
}

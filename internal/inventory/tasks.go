package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeReleaseHold is the asynq task type releasing an expired stock hold.
const TypeReleaseHold = "inventory:release_hold"

// ReleaseHoldPayload is the task body.
type ReleaseHoldPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// NewReleaseHoldTask builds the task for an order.
func NewReleaseHoldTask(orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ReleaseHoldPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReleaseHold, payload, asynq.MaxRetry(5)), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// HoldScheduler places holds and schedules their release.
type HoldScheduler struct {
	Reserver Reserver
	Tasks    TaskEnqueuer
	HoldFor  time.Duration
}

// Hold reserves stock for the order and schedules a release after the hold
// window. The task id is derived from the order so rescheduling is idempotent.
func (h HoldScheduler) Hold(ctx context.Context, orderID uuid.UUID, lines []ReservationLine) error {
	if h.Reserver == nil {
		return errors.New("inventory: reserver not configured")
	}
	if err := h.Reserver.TryReserve(ctx, orderID, lines); err != nil {
		return err
	}
	if h.Tasks == nil || h.HoldFor <= 0 {
		return nil
	}
	task, err := NewReleaseHoldTask(orderID)
	if err != nil {
		return err
	}
	_, err = h.Tasks.EnqueueContext(ctx, task,
		asynq.ProcessIn(h.HoldFor),
		asynq.TaskID("release-hold:"+orderID.String()),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("inventory: schedule release: %w", err)
	}
	return nil
}

// ReleaseHoldHandler processes TypeReleaseHold tasks.
type ReleaseHoldHandler struct {
	Reserver Reserver
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h ReleaseHoldHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ReleaseHoldPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("inventory: decode release payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.OrderID == uuid.Nil {
		return fmt.Errorf("inventory: release payload missing order id: %w", asynq.SkipRetry)
	}
	if h.Reserver == nil {
		return errors.New("inventory: reserver not configured")
	}
	if err := h.Reserver.Release(ctx, payload.OrderID); err != nil {
		return err
	}
	h.Logger.Info().Str("order_id", payload.OrderID.String()).Msg("stock_hold_released")
	return nil
}

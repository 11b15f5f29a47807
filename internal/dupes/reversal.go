package dupes

import (
	"context"
	"log/slog"
	"time"
)

// Reverser undoes a remediation on operator request. It has no automatic
// trigger.
type Reverser struct {
	Mutator OrderMutator
	Logger  *slog.Logger
	Now     func() time.Time
}

// Reverse reopens the order, optionally strips settings.TagName and appends a
// reopen note. Every step is attempted; effects of successful steps are kept
// even when a later one fails.
func (r *Reverser) Reverse(ctx context.Context, settings Settings, orderID string, removeTag bool) error {
	settings = settings.Normalize()
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("order_id", orderID)
	failure := &ReversalError{OrderID: orderID}
	if r.Mutator == nil {
		failure.Steps = append(failure.Steps, StepError{OrderID: orderID, Step: StepFetch, Err: ErrOrderNotFound})
		return failure
	}

	if err := r.Mutator.Reopen(ctx, orderID); err != nil {
		failure.Steps = append(failure.Steps, StepError{OrderID: orderID, Step: StepReopen, Err: err})
		log.Error("failed to reopen order", "error", err)
	}

	if removeTag {
		if err := r.removeTag(ctx, orderID, settings.TagName); err != nil {
			failure.Steps = append(failure.Steps, StepError{OrderID: orderID, Step: StepUntag, Err: err})
			log.Error("failed to remove duplicate tag", "tag", settings.TagName, "error", err)
		}
	}

	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}
	if err := r.appendNote(ctx, orderID, reopenNote(now)); err != nil {
		failure.Steps = append(failure.Steps, StepError{OrderID: orderID, Step: StepNote, Err: err})
		log.Error("failed to add reopen note", "error", err)
	}

	if len(failure.Steps) > 0 {
		return failure
	}
	log.Info("order reopened", "tag_removed", removeTag)
	return nil
}

func (r *Reverser) removeTag(ctx context.Context, orderID, tag string) error {
	current, err := r.Mutator.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	tags, removed := current.Tags.Remove(tag)
	if !removed {
		return nil
	}
	return r.Mutator.SetTags(ctx, orderID, tags)
}

func (r *Reverser) appendNote(ctx context.Context, orderID, entry string) error {
	current, err := r.Mutator.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return r.Mutator.SetNote(ctx, orderID, AppendNote(current.Note, entry))
}

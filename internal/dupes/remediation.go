package dupes

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type Trigger string

const (
	TriggerBatch       Trigger = "batch"
	TriggerIncremental Trigger = "incremental"
)

// Remediation is the per-decision outcome. Errors holds every step that
// failed; a failed step never stops the later steps.
type Remediation struct {
	OrderID      string      `json:"orderId"`
	OrderName    string      `json:"orderName"`
	SiblingNames []string    `json:"duplicates"`
	Tagged       bool        `json:"tagged"`
	Noted        bool        `json:"noted"`
	Canceled     bool        `json:"canceled"`
	DryRun       bool        `json:"dryRun,omitempty"`
	Errors       []StepError `json:"-"`
	ErrorText    []string    `json:"errors,omitempty"`
}

func (r Remediation) Complete() bool {
	return len(r.Errors) == 0
}

type Remediator struct {
	Mutator     OrderMutator
	Logger      *slog.Logger
	Now         func() time.Time
	Concurrency int
	DryRun      bool
}

func (r *Remediator) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Remediator) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// ApplyAll remediates each decision independently. Results keep the order of
// decisions regardless of Concurrency.
func (r *Remediator) ApplyAll(ctx context.Context, settings Settings, trigger Trigger, decisions []Decision) []Remediation {
	results := make([]Remediation, len(decisions))
	limit := r.Concurrency
	if limit <= 1 {
		for i, decision := range decisions {
			results[i] = r.Apply(ctx, settings, trigger, decision)
		}
		return results
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, decision := range decisions {
		i, decision := i, decision
		g.Go(func() error {
			results[i] = r.Apply(ctx, settings, trigger, decision)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Apply runs tag, note and optional cancel against the decision's canonical
// order, in that order.
func (r *Remediator) Apply(ctx context.Context, settings Settings, trigger Trigger, decision Decision) Remediation {
	settings = settings.Normalize()
	target := decision.Canonical
	result := Remediation{
		OrderID:      target.ID,
		OrderName:    target.displayName(),
		SiblingNames: append([]string(nil), decision.SiblingNames...),
	}
	log := r.logger().With("order", result.OrderName, "order_id", target.ID, "trigger", string(trigger))
	if r.DryRun {
		result.DryRun = true
		log.Info("dry run: would remediate duplicate order",
			"tag", settings.TagName,
			"duplicates", decision.SiblingNames,
			"auto_cancel", settings.AutoCancel)
		return result
	}
	if r.Mutator == nil {
		result.fail(target.ID, StepFetch, ErrOrderNotFound)
		return result
	}

	current, err := r.addTag(ctx, target.ID, settings.TagName)
	if err != nil {
		result.fail(target.ID, StepTag, err)
		log.Error("failed to tag duplicate order", "error", err)
	} else {
		result.Tagged = true
	}

	entry := detectionNote(trigger, decision.SiblingNames, r.now(), settings.AutoCancel)
	if err := r.appendNote(ctx, target.ID, entry); err != nil {
		result.fail(target.ID, StepNote, err)
		log.Error("failed to annotate duplicate order", "error", err)
	} else {
		result.Noted = true
	}

	switch {
	case !settings.AutoCancel:
	case current.Canceled():
		result.Canceled = true
		log.Info("duplicate order already canceled, skipping cancel")
	default:
		err := r.Mutator.Cancel(ctx, target.ID, CancelOptions{
			Reason:         CancelReasonOther,
			NotifyCustomer: false,
			Refund:         false,
			Note:           cancelNote(trigger, decision.SiblingNames),
		})
		if err != nil {
			result.fail(target.ID, StepCancel, err)
			log.Error("failed to cancel duplicate order", "error", err)
		} else {
			result.Canceled = true
		}
	}

	if result.Complete() {
		log.Info("duplicate order remediated",
			"duplicates", decision.SiblingNames,
			"canceled", result.Canceled)
	}
	return result
}

// addTag returns the snapshot it fetched so the cancel step can tell an
// already canceled order apart. The snapshot is zero when the fetch failed.
func (r *Remediator) addTag(ctx context.Context, orderID, tag string) (Order, error) {
	current, err := r.Mutator.FetchOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	tags, changed := current.Tags.Add(tag)
	if !changed {
		return current, nil
	}
	return current, r.Mutator.SetTags(ctx, orderID, tags)
}

func (r *Remediator) appendNote(ctx context.Context, orderID, entry string) error {
	current, err := r.Mutator.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return r.Mutator.SetNote(ctx, orderID, AppendNote(current.Note, entry))
}

func (r *Remediation) fail(orderID string, step Step, err error) {
	stepErr := StepError{OrderID: orderID, Step: step, Err: err}
	r.Errors = append(r.Errors, stepErr)
	r.ErrorText = append(r.ErrorText, stepErr.Error())
}

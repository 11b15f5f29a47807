package dupes

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateGrouping    State = "grouping"
	StateResolving   State = "resolving"
	StateRemediating State = "remediating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const (
	SkipWebhookDisabled = "webhook processing disabled"
	SkipNotUnfulfilled  = "order is not unfulfilled"
	SkipNoPhone         = "order has no phone number"
)

type Transition struct {
	ScanID  string    `json:"scanId"`
	Trigger Trigger   `json:"trigger"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Detail  string    `json:"detail,omitempty"`
}

type Observer interface {
	ScanTransition(Transition)
}

type ObserverFunc func(Transition)

func (f ObserverFunc) ScanTransition(t Transition) {
	f(t)
}

type DecisionSummary struct {
	Phone          PhoneKey `json:"phone"`
	CanonicalID    string   `json:"unfulfilledOrderId"`
	CanonicalName  string   `json:"unfulfilledOrder"`
	DuplicateNames []string `json:"duplicates"`
}

// Report is what a scan tells its caller. Every detected group appears in
// Decisions whether or not its remediation succeeded.
type Report struct {
	ID            string            `json:"id"`
	Trigger       Trigger           `json:"trigger"`
	State         State             `json:"state"`
	SearchDays    int               `json:"searchDays"`
	WindowStart   time.Time         `json:"windowStart"`
	WindowEnd     time.Time         `json:"windowEnd"`
	OrdersScanned int               `json:"ordersScanned"`
	GroupsFound   int               `json:"groupsFound"`
	// PhoneGroups counts every shared-phone group, including groups with
	// no unfulfilled member that produced no decision.
	PhoneGroups   int               `json:"phoneGroups"`
	Decisions     []DecisionSummary `json:"decisions"`
	Remediations  []Remediation     `json:"remediations"`
	Failed        []string          `json:"failed"`
	FailedIDs     []string          `json:"failedIds"`
	Skipped       string            `json:"skipped,omitempty"`
	DryRun        bool              `json:"dryRun,omitempty"`
}

type BatchOptions struct {
	// SearchDays overrides settings.SearchDays when positive.
	SearchDays int
	DryRun     bool
}

type ScannerOptions struct {
	Directory              OrderDirectory
	Mutator                OrderMutator
	Logger                 *slog.Logger
	Now                    func() time.Time
	Observer               Observer
	RemediationConcurrency int
	Tracer                 trace.Tracer
}

type Scanner struct {
	directory   OrderDirectory
	mutator     OrderMutator
	logger      *slog.Logger
	now         func() time.Time
	observer    Observer
	concurrency int
	tracer      trace.Tracer
}

func NewScanner(opts ScannerOptions) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	concurrency := opts.RemediationConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/agentworkforce/dupeguard/internal/dupes")
	}
	return &Scanner{
		directory:   opts.Directory,
		mutator:     opts.Mutator,
		logger:      logger,
		now:         now,
		observer:    opts.Observer,
		concurrency: concurrency,
		tracer:      tracer,
	}
}

// RunBatch fetches every order in the window and runs the full pipeline. A
// fetch failure aborts the scan with ErrSourceUnavailable and no report.
func (s *Scanner) RunBatch(ctx context.Context, settings Settings, opts BatchOptions) (*Report, error) {
	settings = settings.Normalize()
	days := settings.SearchDays
	if opts.SearchDays > 0 {
		days = ClampSearchDays(opts.SearchDays)
	}
	now := s.now()
	report := s.newReport(TriggerBatch, days, now)
	report.DryRun = opts.DryRun

	ctx, span := s.tracer.Start(ctx, "dupes.scan", trace.WithAttributes(
		attribute.String("dupes.trigger", string(TriggerBatch)),
		attribute.Int("dupes.search_days", days),
	))
	defer span.End()
	log := s.logger.With("scan_id", report.ID, "trigger", string(TriggerBatch))
	log.Info("starting duplicate scan", "search_days", days, "window_start", report.WindowStart)

	s.transition(report, StateFetching, "")
	fetched, err := s.fetchWindow(ctx, report.WindowStart)
	if err != nil {
		s.transition(report, StateFailed, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		log.Error("duplicate scan aborted", "error", err)
		return nil, err
	}
	orders := InWindow(fetched, now, days)
	report.OrdersScanned = len(orders)

	s.transition(report, StateGrouping, "")
	groups := GroupByPhone(orders)

	s.transition(report, StateResolving, "")
	decisions := ResolveAll(groups)
	report.GroupsFound = len(decisions)
	report.PhoneGroups = len(groups)
	log.Info("duplicate groups resolved", "orders", len(orders), "phone_groups", len(groups), "decisions", len(decisions))

	s.remediate(ctx, report, settings, TriggerBatch, decisions, opts.DryRun)
	s.finish(span, report, log)
	return report, nil
}

// RunIncremental checks one newly created order against the comparison
// window. It acts only when the order is unfulfilled, has a phone, webhook
// processing is enabled and at least one other order in the window shares
// its phone.
func (s *Scanner) RunIncremental(ctx context.Context, settings Settings, order Order) (*Report, error) {
	settings = settings.Normalize()
	now := s.now()
	report := s.newReport(TriggerIncremental, settings.SearchDays, now)

	ctx, span := s.tracer.Start(ctx, "dupes.scan", trace.WithAttributes(
		attribute.String("dupes.trigger", string(TriggerIncremental)),
		attribute.String("dupes.order_id", order.ID),
	))
	defer span.End()
	log := s.logger.With("scan_id", report.ID, "trigger", string(TriggerIncremental), "order", order.displayName())

	key := PhoneKeyOf(order)
	switch {
	case !settings.WebhookEnabled:
		report.Skipped = SkipWebhookDisabled
	case !order.FulfillmentStatus.IsUnfulfilled():
		report.Skipped = SkipNotUnfulfilled
	case !key.Resolved():
		report.Skipped = SkipNoPhone
	}
	if report.Skipped != "" {
		log.Info("skipping order", "reason", report.Skipped)
		s.transition(report, StateDone, report.Skipped)
		span.SetAttributes(attribute.String("dupes.skipped", report.Skipped))
		return report, nil
	}

	s.transition(report, StateFetching, "")
	fetched, err := s.fetchWindow(ctx, report.WindowStart)
	if err != nil {
		s.transition(report, StateFailed, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		log.Error("incremental check aborted", "error", err)
		return nil, err
	}
	window := InWindow(fetched, now, settings.SearchDays)
	report.OrdersScanned = len(window)

	s.transition(report, StateGrouping, "")
	matches := make([]Order, 0)
	for _, existing := range window {
		if existing.ID == order.ID {
			continue
		}
		if PhoneKeyOf(existing) == key {
			matches = append(matches, existing)
		}
	}

	s.transition(report, StateResolving, "")
	var decisions []Decision
	if len(matches) > 0 {
		decisions = append(decisions, newDecision(key, order, matches))
		log.Warn("duplicate detected", "phone", string(key), "matches", orderNames(matches))
	} else {
		log.Info("order is clean, no duplicates found")
	}
	report.GroupsFound = len(decisions)
	report.PhoneGroups = len(decisions)

	s.remediate(ctx, report, settings, TriggerIncremental, decisions, false)
	s.finish(span, report, log)
	return report, nil
}

// Reverse is the manual undo path for a remediated order.
func (s *Scanner) Reverse(ctx context.Context, settings Settings, orderID string, removeTag bool) error {
	reverser := &Reverser{Mutator: s.mutator, Logger: s.logger, Now: s.now}
	return reverser.Reverse(ctx, settings, orderID, removeTag)
}

// CanceledDuplicates lists canceled orders that still carry the duplicate tag.
func (s *Scanner) CanceledDuplicates(ctx context.Context, settings Settings) ([]Order, error) {
	settings = settings.Normalize()
	if s.directory == nil {
		return nil, sourceUnavailable("fetch canceled orders", ErrOrderNotFound)
	}
	orders, err := s.directory.FetchCanceledOrders(ctx)
	if err != nil {
		return nil, sourceUnavailable("fetch canceled orders", err)
	}
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		if order.Tags.Has(settings.TagName) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *Scanner) remediate(ctx context.Context, report *Report, settings Settings, trigger Trigger, decisions []Decision, dryRun bool) {
	for _, decision := range decisions {
		report.Decisions = append(report.Decisions, DecisionSummary{
			Phone:          decision.Key,
			CanonicalID:    decision.Canonical.ID,
			CanonicalName:  decision.Canonical.displayName(),
			DuplicateNames: append([]string(nil), decision.SiblingNames...),
		})
	}
	s.transition(report, StateRemediating, "")
	remediator := &Remediator{
		Mutator:     s.mutator,
		Logger:      s.logger.With("scan_id", report.ID),
		Now:         s.now,
		Concurrency: s.concurrency,
		DryRun:      dryRun,
	}
	report.Remediations = remediator.ApplyAll(ctx, settings, trigger, decisions)
	for _, remediation := range report.Remediations {
		if !remediation.Complete() {
			report.Failed = append(report.Failed, remediation.OrderName)
			report.FailedIDs = append(report.FailedIDs, remediation.OrderID)
		}
	}
}

func (s *Scanner) finish(span trace.Span, report *Report, log *slog.Logger) {
	s.transition(report, StateDone, "")
	span.SetAttributes(
		attribute.Int("dupes.orders_scanned", report.OrdersScanned),
		attribute.Int("dupes.groups_found", report.GroupsFound),
		attribute.Int("dupes.phone_groups", report.PhoneGroups),
		attribute.Int("dupes.failed", len(report.Failed)),
	)
	if len(report.Failed) > 0 {
		span.SetStatus(codes.Error, "remediation incomplete")
		log.Warn("scan finished with remediation failures", "groups", report.GroupsFound, "failed", report.Failed)
		return
	}
	log.Info("scan finished", "groups", report.GroupsFound)
}

func (s *Scanner) fetchWindow(ctx context.Context, since time.Time) ([]Order, error) {
	if s.directory == nil {
		return nil, sourceUnavailable("fetch orders", ErrOrderNotFound)
	}
	orders, err := s.directory.FetchOrdersCreatedSince(ctx, since)
	if err != nil {
		return nil, sourceUnavailable("fetch orders", err)
	}
	return orders, nil
}

func (s *Scanner) newReport(trigger Trigger, days int, now time.Time) *Report {
	return &Report{
		ID:           uuid.NewString(),
		Trigger:      trigger,
		State:        StateIdle,
		SearchDays:   days,
		WindowStart:  WindowStart(now, days),
		WindowEnd:    now,
		Decisions:    []DecisionSummary{},
		Remediations: []Remediation{},
		Failed:       []string{},
		FailedIDs:    []string{},
	}
}

func (s *Scanner) transition(report *Report, to State, detail string) {
	from := report.State
	report.State = to
	if s.observer == nil {
		return
	}
	s.observer.ScanTransition(Transition{
		ScanID:  report.ID,
		Trigger: report.Trigger,
		From:    from,
		To:      to,
		At:      s.now(),
		Detail:  detail,
	})
}

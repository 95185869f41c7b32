package proforma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxTransitionAttempts = 3
	defaultListLimit      = 25
	maxListLimit          = 100
)

// ServiceConfig holds the defaults applied at creation time.
type ServiceConfig struct {
	DefaultValidity time.Duration
	DefaultTaxRate  decimal.Decimal
	DefaultCurrency string
	DefaultCountry  string
	ExpireBatchSize int
	ConvertLockTTL  time.Duration
}

// DefaultServiceConfig mirrors the historical behaviour: 30 days validity,
// 18% VAT, FCFA, Gabon.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultValidity: 30 * 24 * time.Hour,
		DefaultTaxRate:  decimal.RequireFromString("0.18"),
		DefaultCurrency: "FCFA",
		DefaultCountry:  "Gabon",
		ExpireBatchSize: 500,
		ConvertLockTTL:  30 * time.Second,
	}
}

// Dependencies collects the collaborators of the Service.
type Dependencies struct {
	Repository Repository
	Numbers    NumberGenerator
	Catalog    CatalogLookup
	Orders     OrderService
	Notifier   Notifier
	Clock      Clock
	Locker     Locker
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Service orchestrates proforma creation and lifecycle.
type Service struct {
	repo     Repository
	numbers  NumberGenerator
	catalog  CatalogLookup
	orders   OrderService
	notifier Notifier
	clock    Clock
	locker   Locker
	logger   *slog.Logger
	metrics  *Metrics
	cfg      ServiceConfig
}

// NewService constructs a Service. Clock, Locker and Logger fall back to the
// system clock, an in-process locker and slog.Default.
func NewService(deps Dependencies, cfg ServiceConfig) *Service {
	defaults := DefaultServiceConfig()
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = defaults.DefaultValidity
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = defaults.DefaultCountry
	}
	if cfg.ExpireBatchSize <= 0 {
		cfg.ExpireBatchSize = defaults.ExpireBatchSize
	}
	if cfg.ConvertLockTTL <= 0 {
		cfg.ConvertLockTTL = defaults.ConvertLockTTL
	}
	s := &Service{
		repo:     deps.Repository,
		numbers:  deps.Numbers,
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		locker:   deps.Locker,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		cfg:      cfg,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ItemInput is a requested line. Price and tax default to the catalog values.
type ItemInput struct {
	BookReference string
	Quantity      int
	UnitPriceHT   *decimal.Decimal
	DiscountRate  decimal.Decimal
	TaxRate       *decimal.Decimal
}

// CreateInput is the payload of Create.
type CreateInput struct {
	Recipient         Recipient
	Items             []ItemInput
	PromoDiscountRate *decimal.Decimal
	PromoCode         *string
	ValidUntil        *time.Time
	Notes             *string
	Currency          string
	Country           string
	OrderType         *string
	InitialStatus     Status
	CreatedBy         string
}

// UpdateDraftInput replaces parts of a DRAFT proforma. Nil fields are kept.
type UpdateDraftInput struct {
	Items             *[]ItemInput
	PromoDiscountRate *decimal.Decimal
	ClearPromo        bool
	PromoCode         *string
	ValidUntil        *time.Time
	Notes             *string
}

// Result is returned by operations that may succeed with a degraded side
// effect. Degraded is non-nil when the notification failed after commit.
type Result struct {
	Document *Document
	Degraded error
}

// Create builds, prices and stores a new proforma in DRAFT or SENT.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	if err := in.Recipient.Validate(); err != nil {
		return nil, err
	}
	initial := in.InitialStatus
	if initial == "" {
		initial = StatusDraft
	}
	if initial != StatusDraft && initial != StatusSent {
		return nil, fmt.Errorf("%w: initial status must be DRAFT or SENT, got %q", ErrValidation, initial)
	}

	items, err := s.snapshotItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	validUntil := now.Add(s.cfg.DefaultValidity)
	if in.ValidUntil != nil {
		validUntil = *in.ValidUntil
	}

	doc := Document{
		ID:                uuid.New(),
		Recipient:         in.Recipient,
		Items:             items,
		PromoDiscountRate: copyDecimal(in.PromoDiscountRate),
		PromoCode:         trimmedOrNil(in.PromoCode),
		Status:            StatusDraft,
		Currency:          firstNonEmpty(in.Currency, s.cfg.DefaultCurrency),
		Country:           firstNonEmpty(in.Country, s.cfg.DefaultCountry),
		OrderType:         trimmedOrNil(in.OrderType),
		Notes:             trimmedOrNil(in.Notes),
		CreatedBy:         in.CreatedBy,
		ValidUntil:        validUntil,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := doc.Recompute(); err != nil {
		return nil, err
	}
	if initial == StatusSent {
		sent, err := ApplyTransition(&doc, ActionSend, TransitionInput{Now: now})
		if err != nil {
			return nil, err
		}
		doc = sent
	}

	number, err := s.numbers.Next(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("generate proforma number: %w", err)
	}
	doc.Number = number

	if err := s.repo.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("create proforma: %w", err)
	}
	s.metrics.observeCreated(doc.Status)
	s.logger.Info("proforma created",
		slog.String("number", doc.Number),
		slog.String("status", string(doc.Status)),
		slog.String("created_by", doc.CreatedBy),
		slog.String("total_ttc", doc.Totals.TotalTTC.String()),
	)

	res := &Result{Document: &doc}
	if doc.Status == StatusSent {
		res.Degraded = s.notify(ctx, NotificationSent, doc)
	}
	return res, nil
}

// Transition applies action to the proforma identified by id. Concurrent
// transitions are resolved by the repository version check: the loser
// reloads and is judged against the winner's state.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action, reason string) (*Result, error) {
	if action == ActionConvert {
		res, err := s.convert(ctx, id)
		s.metrics.observeTransition(action, err)
		return res, err
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		doc, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := ApplyTransition(doc, action, TransitionInput{Now: s.clock.Now(), Reason: reason})
		if err != nil {
			s.metrics.observeTransition(action, err)
			return nil, err
		}
		next.Version = doc.Version + 1
		if err := s.repo.Update(ctx, next, doc.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("%s proforma: %w", action, err)
		}
		s.metrics.observeTransition(action, nil)
		s.logger.Info("proforma transition",
			slog.String("number", next.Number),
			slog.String("action", string(action)),
			slog.String("from", string(doc.Status)),
			slog.String("to", string(next.Status)),
		)
		return &Result{Document: &next, Degraded: s.afterTransition(ctx, action, next)}, nil
	}
	err := fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
	s.metrics.observeTransition(action, err)
	return nil, err
}

func (s *Service) convert(ctx context.Context, id uuid.UUID) (*Result, error) {
	release, err := s.locker.Acquire(ctx, ConvertLockKey(id), s.cfg.ConvertLockTTL)
	if err != nil {
		return nil, fmt.Errorf("convert proforma: %w", err)
	}
	defer release()

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in := TransitionInput{Now: s.clock.Now()}
	if err := CheckTransition(doc, ActionConvert, in); err != nil {
		return nil, err
	}

	orderID, err := s.orders.CreateFromProforma(ctx, doc.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderCreation, err)
	}
	in.OrderID = orderID

	next, err := ApplyTransition(doc, ActionConvert, in)
	if err != nil {
		return nil, err
	}
	next.Version = doc.Version + 1
	if err := s.repo.Update(ctx, next, doc.Version); err != nil {
		s.logger.Error("order created but proforma not linked",
			slog.String("number", doc.Number),
			slog.String("order_id", orderID),
			slog.Any("error", err),
		)
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: order %s created for %s but the proforma changed under the convert lock", ErrIntegrity, orderID, doc.Number)
		}
		return nil, fmt.Errorf("convert proforma: %w", err)
	}
	s.logger.Info("proforma converted",
		slog.String("number", next.Number),
		slog.String("order_id", orderID),
	)
	return &Result{Document: &next}, nil
}

// Recompute re-derives the totals from the current items. DRAFT proformas
// are persisted when the totals changed; past DRAFT the stored totals are
// frozen and any drift is an integrity error.
func (s *Service) Recompute(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := doc.Clone()
	if err := next.Recompute(); err != nil {
		return nil, fmt.Errorf("recompute proforma %s: %w", doc.Number, err)
	}
	if sameAmounts(doc, &next) {
		return doc, nil
	}
	if doc.Status != StatusDraft {
		return nil, fmt.Errorf("%w: stored totals of %s drifted from its items", ErrIntegrity, doc.Number)
	}
	next.Version = doc.Version + 1
	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, next, doc.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, doc.Number)
		}
		return nil, fmt.Errorf("recompute proforma: %w", err)
	}
	return &next, nil
}

// UpdateDraft edits a DRAFT proforma and recomputes its totals.
func (s *Service) UpdateDraft(ctx context.Context, id uuid.UUID, in UpdateDraftInput) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only DRAFT proformas can be updated, %s is %s", ErrInvalidTransition, doc.Number, doc.Status)
	}

	next := doc.Clone()
	if in.Items != nil {
		items, err := s.snapshotItems(ctx, *in.Items)
		if err != nil {
			return nil, err
		}
		next.Items = items
	}
	switch {
	case in.ClearPromo:
		next.PromoDiscountRate = nil
		next.PromoCode = nil
	case in.PromoDiscountRate != nil:
		next.PromoDiscountRate = copyDecimal(in.PromoDiscountRate)
	}
	if in.PromoCode != nil && !in.ClearPromo {
		next.PromoCode = trimmedOrNil(in.PromoCode)
	}
	if in.ValidUntil != nil {
		next.ValidUntil = *in.ValidUntil
	}
	if in.Notes != nil {
		next.Notes = trimmedOrNil(in.Notes)
	}
	if err := next.Recompute(); err != nil {
		return nil, err
	}

	next.Version = doc.Version + 1
	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, next, doc.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, doc.Number)
		}
		return nil, fmt.Errorf("update proforma: %w", err)
	}
	return &next, nil
}

// Get returns a proforma by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns a proforma by its number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Document, error) {
	return s.repo.GetByNumber(ctx, strings.TrimSpace(number))
}

// List returns a page of proformas and the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// AllowedActions lists the actions currently possible on doc.
func (s *Service) AllowedActions(doc *Document) []Action {
	return AllowedActions(doc, s.clock.Now())
}

// ExpireOverdue moves every SENT proforma past its validity to EXPIRED.
// Documents that changed state meanwhile are skipped.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, s.clock.Now(), s.cfg.ExpireBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expirable proformas: %w", err)
	}
	var (
		expired int
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Transition(ctx, id, ActionExpire, ""); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotExpired) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired overdue proformas", slog.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

func (s *Service) snapshotItems(ctx context.Context, inputs []ItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		ref := strings.TrimSpace(in.BookReference)
		if ref == "" {
			return nil, fmt.Errorf("line %d: %w: book reference is required", i+1, ErrInvalidLineItem)
		}
		work, err := s.catalog.GetWork(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		price := work.PriceHT
		if in.UnitPriceHT != nil {
			price = *in.UnitPriceHT
		}
		tax := s.cfg.DefaultTaxRate
		if work.TaxRate != nil {
			tax = *work.TaxRate
		}
		if in.TaxRate != nil {
			tax = *in.TaxRate
		}

		item := LineItem{
			BookReference: ref,
			Title:         strings.TrimSpace(work.Title),
			ISBN:          strings.TrimSpace(work.ISBN),
			AuthorName:    strings.TrimSpace(work.AuthorName),
			InternalCode:  strings.TrimSpace(work.InternalCode),
			Quantity:      in.Quantity,
			UnitPriceHT:   price,
			DiscountRate:  in.DiscountRate,
			TaxRate:       tax,
		}
		amounts, err := item.Breakdown()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		item.Amounts = amounts
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) afterTransition(ctx context.Context, action Action, doc Document) error {
	switch action {
	case ActionSend:
		return s.notify(ctx, NotificationSent, doc)
	case ActionAccept:
		_ = s.notify(ctx, NotificationAccepted, doc)
	case ActionExpire:
		_ = s.notify(ctx, NotificationExpired, doc)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, kind NotificationKind, doc Document) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Notify(ctx, Notification{ID: uuid.New(), Kind: kind, Document: doc}); err != nil {
		s.metrics.observeNotificationFailure(kind)
		s.logger.Warn("proforma notification failed",
			slog.String("number", doc.Number),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrNotification, err)
	}
	return nil
}

func sameAmounts(a, b *Document) bool {
	if !a.Totals.Equal(b.Totals) || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		x, y := a.Items[i].Amounts, b.Items[i].Amounts
		if !x.LineHT.Equal(y.LineHT) || !x.LineDiscount.Equal(y.LineDiscount) ||
			!x.LineTaxable.Equal(y.LineTaxable) || !x.LineTax.Equal(y.LineTax) ||
			!x.LineTTC.Equal(y.LineTTC) {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

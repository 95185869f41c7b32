package proforma

import (
	"fmt"
	"strings"
	"time"
)

// Action is a lifecycle command applied to a proforma.
type Action string

const (
	ActionSend    Action = "send"
	ActionAccept  Action = "accept"
	ActionExpire  Action = "expire"
	ActionCancel  Action = "cancel"
	ActionConvert Action = "convert"
)

// Actions lists every action in a stable order.
var Actions = []Action{ActionSend, ActionAccept, ActionExpire, ActionCancel, ActionConvert}

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrValidation, raw)
}

// TransitionInput carries the caller supplied data of a transition.
type TransitionInput struct {
	Now     time.Time
	Reason  string
	OrderID string
}

type transitionRule struct {
	to    Status
	check func(d *Document, in TransitionInput) error
	apply func(d *Document, in TransitionInput)
}

var transitions = map[Status]map[Action]transitionRule{
	StatusDraft: {
		ActionSend:   {to: StatusSent, check: checkSend, apply: applySend},
		ActionCancel: {to: StatusCancelled, check: checkCancel, apply: applyCancel},
	},
	StatusSent: {
		ActionAccept: {to: StatusAccepted, apply: applyAccept},
		ActionExpire: {to: StatusExpired, check: checkExpire, apply: applyExpire},
		ActionCancel: {to: StatusCancelled, check: checkCancel, apply: applyCancel},
	},
	StatusAccepted: {
		ActionConvert: {to: StatusAccepted, check: checkConvert, apply: applyConvert},
	},
}

// CheckTransition validates action against the current state of d without
// mutating it. Convert is checked without an order id since the order is
// created only after the check passes.
func CheckTransition(d *Document, action Action, in TransitionInput) error {
	rule, err := lookupRule(d, action)
	if err != nil {
		return err
	}
	if rule.check != nil {
		return rule.check(d, in)
	}
	return nil
}

// ApplyTransition returns the document resulting from action. d itself is
// never modified, so a failed transition leaves no trace.
func ApplyTransition(d *Document, action Action, in TransitionInput) (Document, error) {
	if err := CheckTransition(d, action, in); err != nil {
		return Document{}, err
	}
	if action == ActionConvert && strings.TrimSpace(in.OrderID) == "" {
		return Document{}, fmt.Errorf("%w: convert applied without an order id", ErrIntegrity)
	}
	rule := transitions[d.Status][action]
	next := d.Clone()
	next.Status = rule.to
	rule.apply(&next, in)
	next.UpdatedAt = in.Now
	return next, nil
}

// AllowedActions lists the actions whose preconditions currently hold.
func AllowedActions(d *Document, now time.Time) []Action {
	allowed := make([]Action, 0, 2)
	in := TransitionInput{Now: now, Reason: "-"}
	for _, action := range Actions {
		if CheckTransition(d, action, in) == nil {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

func lookupRule(d *Document, action Action) (transitionRule, error) {
	rules, ok := transitions[d.Status]
	if !ok {
		return transitionRule{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, d.Status)
	}
	rule, ok := rules[action]
	if !ok {
		return transitionRule{}, fmt.Errorf("%w: cannot %s a %s proforma", ErrInvalidTransition, action, d.Status)
	}
	return rule, nil
}

func checkSend(d *Document, in TransitionInput) error {
	if len(d.Items) == 0 {
		return ErrEmptyItems
	}
	if !d.ValidUntil.After(in.Now) {
		return fmt.Errorf("%w: valid until %s", ErrValidityPassed, d.ValidUntil.Format(time.RFC3339))
	}
	return nil
}

func applySend(d *Document, in TransitionInput) {
	if d.IssuedAt == nil {
		d.IssuedAt = copyPtr(&in.Now)
	}
	d.SentAt = copyPtr(&in.Now)
}

func applyAccept(d *Document, in TransitionInput) {
	d.AcceptedAt = copyPtr(&in.Now)
}

func checkExpire(d *Document, in TransitionInput) error {
	if !in.Now.After(d.ValidUntil) {
		return fmt.Errorf("%w: valid until %s", ErrNotExpired, d.ValidUntil.Format(time.RFC3339))
	}
	return nil
}

func applyExpire(d *Document, in TransitionInput) {
	d.ExpiredAt = copyPtr(&in.Now)
}

func checkCancel(_ *Document, in TransitionInput) error {
	if strings.TrimSpace(in.Reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

func applyCancel(d *Document, in TransitionInput) {
	reason := strings.TrimSpace(in.Reason)
	d.CancelledAt = copyPtr(&in.Now)
	d.CancellationReason = &reason
}

func checkConvert(d *Document, _ TransitionInput) error {
	if d.Converted() {
		return fmt.Errorf("%w: order %s", ErrAlreadyConverted, *d.OrderID)
	}
	return nil
}

func applyConvert(d *Document, in TransitionInput) {
	orderID := strings.TrimSpace(in.OrderID)
	d.OrderID = &orderID
	d.ConvertedAt = copyPtr(&in.Now)
}

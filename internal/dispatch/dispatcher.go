// Package dispatch turns a complaint snapshot into delivered notifications.
//
// For each (complaint, role) the dispatcher:
//  1. Resolves the recipient (directory for officials, submitter for citizens)
//  2. Composes the body and hashes it
//  3. Skips the send when the ledger already holds a sent row with that hash
//  4. Sends through the gateway, retrying transport failures with backoff
//
// Every state change is committed to the ledger before the next step runs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicnotify/internal/complaint"
	"civicnotify/internal/compose"
	"civicnotify/internal/directory"
	apperrors "civicnotify/internal/errors"
	"civicnotify/internal/gateway"
	"civicnotify/internal/ledger"
	"civicnotify/internal/token"
)

const missingAddressDetail = "missing recipient address"

// Router resolves the department contact for a complaint.
type Router interface {
	Resolve(city, category string) (directory.DepartmentContact, bool)
}

// TokenSource supplies the action token embedded in official messages.
type TokenSource interface {
	Ensure(ctx context.Context, complaintID string) (token.ActionToken, error)
}

// Translator renders complaint text in the regional language. Optional.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Alerter delivers operator alerts over a channel other than the gateway.
type Alerter interface {
	Alert(ctx context.Context, attempt complaint.DispatchAttempt) error
}

// Options holds retry and alerting settings.
type Options struct {
	MaxAttempts     int           // Total gateway attempts per dispatch
	BaseDelay       time.Duration // First backoff delay
	Multiplier      float64       // Backoff growth per attempt
	CallTimeout     time.Duration // Bound on one gateway call
	OperatorAddress string        // Alert recipient over the gateway
	Alerter         Alerter       // Takes precedence over OperatorAddress when set
}

// Outcome is the result of one Dispatch call.
type Outcome struct {
	complaint.DispatchAttempt
	Duplicate bool // An identical message had already been sent
}

// Dispatcher delivers official and citizen notifications.
//
// Thread-safety:
//   - Dispatches for the same (complaint, role) are serialized
//   - Different keys run concurrently
type Dispatcher struct {
	gw         gateway.Gateway
	ledger     ledger.Ledger
	router     Router
	tokens     TokenSource
	composer   *compose.Composer
	translator Translator
	opts       Options

	locks *keyedMutex

	// Sends the gateway accepted but the ledger failed to record, keyed by
	// complaint/role. A later dispatch with the same hash re-records these
	// instead of sending again.
	unrecordedMu sync.Mutex
	unrecorded   map[string]complaint.DispatchAttempt

	stateMu  sync.Mutex
	closing  bool
	stop     chan struct{}
	inflight sync.WaitGroup

	now func() time.Time
}

// New creates a dispatcher. translator may be nil.
func New(gw gateway.Gateway, l ledger.Ledger, router Router, tokens TokenSource, composer *compose.Composer, translator Translator, opts Options) *Dispatcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = 2
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}

	return &Dispatcher{
		gw:         gw,
		ledger:     l,
		router:     router,
		tokens:     tokens,
		composer:   composer,
		translator: translator,
		opts:       opts,
		locks:      newKeyedMutex(),
		unrecorded: make(map[string]complaint.DispatchAttempt),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
}

func rowKey(complaintID string, role complaint.Role) string {
	return complaintID + "/" + string(role)
}

func (d *Dispatcher) enter() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.closing {
		return false
	}
	d.inflight.Add(1)
	return true
}

// Shutdown stops accepting dispatches, interrupts backoff waits and waits
// for in-flight dispatches to commit their current ledger write.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stateMu.Lock()
	if !d.closing {
		d.closing = true
		close(d.stop)
	}
	d.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// Dispatch delivers the notification for one role of a complaint.
//
// Returns:
//   - Outcome: the committed ledger row (sent, failed or gateway_error)
//   - error: *errors.LedgerWriteFailure, errors.ErrShuttingDown, a context
//     error, or a token store failure; recorded terminal outcomes are not
//     errors
func (d *Dispatcher) Dispatch(ctx context.Context, cmp complaint.Complaint, role complaint.Role) (Outcome, error) {
	return d.dispatch(ctx, cmp, role, role == complaint.RoleOfficial)
}

// dispatch is Dispatch for a notification that announces the complaint's
// creation. Once the department has acted, a creation notice that was
// already sent is never sent again: the official's link is spent and the
// citizen hears about the decision through the status change.
func (d *Dispatcher) dispatch(ctx context.Context, cmp complaint.Complaint, role complaint.Role, creation bool) (Outcome, error) {
	if !d.enter() {
		return Outcome{}, apperrors.ErrShuttingDown
	}
	defer d.inflight.Done()

	key := rowKey(cmp.ID, role)
	unlock := d.locks.Lock(key)
	defer unlock()

	prev, found, err := d.ledger.LastOutcome(ctx, cmp.ID, role)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read ledger for %s: %w", key, err)
	}

	if creation && found && prev.Outcome == complaint.OutcomeSent && !awaitingAction(cmp.Status) {
		log.Printf("   ↩️  %s already acted on (%s), skipping", key, cmp.Status)
		return Outcome{DispatchAttempt: prev, Duplicate: true}, nil
	}

	address, body, err := d.prepare(ctx, cmp, role)
	if err != nil {
		return Outcome{}, err
	}
	hash := body.Hash()

	if found && prev.Outcome == complaint.OutcomeSent && prev.BodyHash == hash {
		log.Printf("   ↩️  %s already sent, skipping", key)
		return Outcome{DispatchAttempt: prev, Duplicate: true}, nil
	}

	if pending, ok := d.takeUnrecorded(key, hash); ok {
		log.Printf("   🔄 Re-recording accepted send for %s", key)
		if err := d.record(ctx, pending); err != nil {
			d.rememberUnrecorded(key, pending)
			return Outcome{DispatchAttempt: pending}, err
		}
		return Outcome{DispatchAttempt: pending, Duplicate: true}, nil
	}

	attempt := complaint.DispatchAttempt{
		ID:          uuid.NewString(),
		ComplaintID: cmp.ID,
		Role:        role,
		Address:     address,
		BodyHash:    hash,
	}

	if address == "" {
		attempt.Outcome = complaint.OutcomeGatewayError
		attempt.LastError = missingAddressDetail
		attempt.LastAttemptAt = d.now()
		log.Printf("   ⚠️  %s has no recipient address", key)
		return Outcome{DispatchAttempt: attempt}, d.record(ctx, attempt)
	}

	return d.deliver(ctx, attempt, body)
}

// awaitingAction reports whether the department has not acted on a
// complaint in status s yet.
func awaitingAction(s complaint.Status) bool {
	return s == "" || s == complaint.StatusSubmitted
}

// prepare resolves the recipient and composes the body for role.
func (d *Dispatcher) prepare(ctx context.Context, cmp complaint.Complaint, role complaint.Role) (string, compose.Body, error) {
	switch role {
	case complaint.RoleOfficial:
		contact, _ := d.router.Resolve(cmp.City, cmp.Category)
		tok, err := d.tokens.Ensure(ctx, cmp.ID)
		if err != nil {
			return "", "", fmt.Errorf("failed to issue action token for %s: %w", cmp.ID, err)
		}
		return contact.Address, d.composer.OfficialLocalized(cmp, contact, tok, d.translate(ctx, cmp.Description)), nil

	case complaint.RoleCitizen:
		link := d.composer.TrackingLink(cmp)
		if awaitingAction(cmp.Status) {
			return cmp.SubmitterAddress, d.composer.Citizen(cmp, link), nil
		}
		return cmp.SubmitterAddress, d.composer.CitizenStatus(cmp, link), nil

	default:
		return "", "", fmt.Errorf("unknown role %q", role)
	}
}

// translate returns the regional rendering of text, or "" when translation
// is disabled or fails.
func (d *Dispatcher) translate(ctx context.Context, text string) string {
	if d.translator == nil || text == "" {
		return ""
	}
	out, err := d.translator.Translate(ctx, text)
	if err != nil {
		log.Printf("   ⚠️  Translation failed, sending original only: %v", err)
		return ""
	}
	if out == text {
		return ""
	}
	return out
}

// deliver runs the send/retry loop for a prepared attempt.
func (d *Dispatcher) deliver(ctx context.Context, attempt complaint.DispatchAttempt, body compose.Body) (Outcome, error) {
	key := rowKey(attempt.ComplaintID, attempt.Role)

	for n := 1; ; n++ {
		attempt.Attempts = n
		attempt.Outcome = complaint.OutcomePending
		attempt.LastAttemptAt = d.now()
		if err := d.record(ctx, attempt); err != nil {
			return Outcome{DispatchAttempt: attempt}, err
		}

		log.Printf("   📨 Sending %s (attempt %d/%d)", key, n, d.opts.MaxAttempts)

		callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
		res, sendErr := d.gw.Send(callCtx, attempt.Address, string(body))
		cancel()

		switch {
		case sendErr == nil && res.Accepted:
			attempt.Outcome = complaint.OutcomeSent
			attempt.ProviderID = res.ProviderID
			attempt.LastError = ""
			if err := d.record(ctx, attempt); err != nil {
				d.rememberUnrecorded(key, attempt)
				return Outcome{DispatchAttempt: attempt}, err
			}
			log.Printf("   ✓ %s sent", key)
			return Outcome{DispatchAttempt: attempt}, nil

		case sendErr == nil:
			attempt.Outcome = complaint.OutcomeGatewayError
			attempt.LastError = res.Detail
			if err := d.record(ctx, attempt); err != nil {
				return Outcome{DispatchAttempt: attempt}, err
			}
			log.Printf("   ❌ %s rejected by gateway: %s", key, res.Detail)
			d.alert(ctx, attempt)
			return Outcome{DispatchAttempt: attempt}, nil
		}

		attempt.Outcome = complaint.OutcomeFailed
		attempt.LastError = sendErr.Error()
		if err := d.record(ctx, attempt); err != nil {
			return Outcome{DispatchAttempt: attempt}, err
		}

		if n >= d.opts.MaxAttempts {
			log.Printf("   ❌ %s failed after %d attempts: %v", key, n, sendErr)
			d.alert(ctx, attempt)
			return Outcome{DispatchAttempt: attempt}, nil
		}

		delay := d.backoff(n)
		log.Printf("   ⚠️  %s attempt %d failed: %v", key, n, sendErr)
		log.Printf("   → Retrying in %v...", delay)

		if err := d.wait(ctx, delay); err != nil {
			if errors.Is(err, apperrors.ErrShuttingDown) {
				attempt.LastError = "shutdown"
			} else {
				attempt.LastError = err.Error()
			}
			if recErr := d.record(ctx, attempt); recErr != nil {
				return Outcome{DispatchAttempt: attempt}, recErr
			}
			return Outcome{DispatchAttempt: attempt}, err
		}
	}
}

// backoff returns base * mult^(n-1) plus jitter in [0, base/2).
func (d *Dispatcher) backoff(n int) time.Duration {
	delay := float64(d.opts.BaseDelay)
	for i := 1; i < n; i++ {
		delay *= d.opts.Multiplier
	}
	jitter := time.Duration(0)
	if half := int64(d.opts.BaseDelay / 2); half > 0 {
		jitter = time.Duration(rand.Int63n(half))
	}
	return time.Duration(delay) + jitter
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-d.stop:
		return apperrors.ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record commits attempt to the ledger. The write is detached from ctx
// cancellation so a state reached before shutdown is never lost.
func (d *Dispatcher) record(ctx context.Context, attempt complaint.DispatchAttempt) error {
	if err := d.ledger.Record(context.WithoutCancel(ctx), attempt); err != nil {
		log.Printf("   ❌ Ledger write failed for %s: %v", rowKey(attempt.ComplaintID, attempt.Role), err)
		return apperrors.NewLedgerWriteFailure(attempt.ComplaintID, string(attempt.Role), err)
	}
	return nil
}

func (d *Dispatcher) rememberUnrecorded(key string, attempt complaint.DispatchAttempt) {
	d.unrecordedMu.Lock()
	defer d.unrecordedMu.Unlock()
	d.unrecorded[key] = attempt
}

func (d *Dispatcher) takeUnrecorded(key, hash string) (complaint.DispatchAttempt, bool) {
	d.unrecordedMu.Lock()
	defer d.unrecordedMu.Unlock()
	a, ok := d.unrecorded[key]
	if !ok || a.BodyHash != hash {
		return complaint.DispatchAttempt{}, false
	}
	delete(d.unrecorded, key)
	return a, true
}

// alert tells the operator about a terminal failure. Best effort: the
// result is logged and never recorded.
func (d *Dispatcher) alert(ctx context.Context, attempt complaint.DispatchAttempt) {
	if d.opts.Alerter != nil {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.CallTimeout)
		defer cancel()
		if err := d.opts.Alerter.Alert(callCtx, attempt); err != nil {
			log.Printf("   ⚠️  Operator alert failed: %v", err)
		}
		return
	}

	if d.opts.OperatorAddress == "" || gateway.NormalizeAddress(d.opts.OperatorAddress) == gateway.NormalizeAddress(attempt.Address) {
		return
	}

	message := fmt.Sprintf(
		"🚨 NOTIFICATION FAILURE\n\n"+
			"Complaint: %s\n"+
			"Recipient: %s (%s)\n"+
			"Outcome: %s after %d attempt(s)\n"+
			"Error: %s\n"+
			"Time: %s",
		attempt.ComplaintID,
		attempt.Role, attempt.Address,
		attempt.Outcome, attempt.Attempts,
		attempt.LastError,
		d.now().Format("2006-01-02 15:04:05"),
	)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.CallTimeout)
	defer cancel()

	res, err := d.gw.Send(callCtx, d.opts.OperatorAddress, message)
	switch {
	case err != nil:
		log.Printf("   ⚠️  Operator alert failed: %v", err)
	case !res.Accepted:
		log.Printf("   ⚠️  Operator alert rejected: %s", res.Detail)
	default:
		log.Println("   🚨 Operator alerted")
	}
}

// Package orchestrator sequences allowance grants and pool writes for one
// identity. Each accepted action runs a small state machine in its own
// goroutine and reports every state change on a transition stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"miniSwap/internal/metrics"
	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrBusy           = errors.New("conflicting action in flight")
	ErrNotCancellable = errors.New("action can no longer be cancelled")
	ErrUnknownAction  = errors.New("unknown action")
	ErrCancelled      = errors.New("action cancelled")
	ErrClosed         = errors.New("orchestrator closed")
)

// Ledger is the write surface of the pool.
type Ledger interface {
	Address() common.Address
	Approve(ctx context.Context, from common.Address, asset common.Address, amount units.Amount) (common.Hash, error)
	Swap(ctx context.Context, from common.Address, assetIn common.Address, amountIn units.Amount) (common.Hash, error)
	AddLiquidity(ctx context.Context, from common.Address, amount0, amount1 units.Amount) (common.Hash, error)
	RemoveLiquidity(ctx context.Context, from common.Address, shares units.Amount) (common.Hash, error)
	WaitSettled(ctx context.Context, hash common.Hash) error
}

// Mirror is the session state actions are validated against and refreshed through.
type Mirror interface {
	Snapshot() model.PoolSnapshot
	Assets() [2]model.AssetHandle
	Account() (common.Address, bool)
	Reload(ctx context.Context) error
}

// Journal records transitions.
type Journal interface {
	PutTransitionBatch(ctx context.Context, transitions []model.Transition) error
}

const journalTimeout = 5 * time.Second

type Config struct {
	// RefreshOnFailure reloads the mirror after a failed action.
	RefreshOnFailure bool
	Journal          Journal
}

// Request describes a user-confirmed action. Only the fields of its Kind are read.
type Request struct {
	Kind      model.ActionKind
	Direction model.Direction
	AmountIn  units.Amount
	Amount0   units.Amount
	Amount1   units.Amount
	Shares    units.Amount
	Side      model.Side
}

// lane is an (asset, operation) pair. Two actions sharing a lane never overlap.
type lane struct {
	asset common.Address
	op    string
}

type debit struct {
	asset  common.Address
	amount units.Amount
	side   model.Side
}

type entry struct {
	action    model.PendingAction
	lanes     []lane
	debits    []debit
	cancel    context.CancelFunc
	broadcast bool
	cancelled bool
	done      chan struct{}
}

// Orchestrator runs PendingActions against the ledger.
type Orchestrator struct {
	ledger Ledger
	mirror Mirror
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	mu      sync.Mutex
	nextID  uint64
	actions map[uint64]*entry
	lanes   map[lane]uint64

	subMu   sync.Mutex
	subs    map[int]chan model.Transition
	nextSub int
}

func New(ledger Ledger, mirror Mirror, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		ledger:  ledger,
		mirror:  mirror,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		stop:    stop,
		actions: make(map[uint64]*entry),
		lanes:   make(map[lane]uint64),
		subs:    make(map[int]chan model.Transition),
	}
}

// Submit validates req, reserves its lanes and starts the action.
// Parameters are copied into the action and never re-read from the mirror.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (model.PendingAction, error) {
	if err := ctx.Err(); err != nil {
		return model.PendingAction{}, err
	}

	action, debits, lanes, err := o.prepare(req)
	if err != nil {
		metrics.ActionsRejected.WithLabelValues(string(req.Kind), "invalid").Inc()
		return model.PendingAction{}, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return model.PendingAction{}, ErrClosed
	}
	for _, l := range lanes {
		if holder, ok := o.lanes[l]; ok {
			o.mu.Unlock()
			metrics.ActionsRejected.WithLabelValues(string(req.Kind), "busy").Inc()
			return model.PendingAction{}, fmt.Errorf("%w: action %d holds %s/%s", ErrBusy, holder, l.asset.Hex(), l.op)
		}
	}

	o.nextID++
	now := time.Now().UTC()
	action.ID = o.nextID
	action.State = model.StateIdle
	action.CreatedAt = now
	action.UpdatedAt = now

	actionCtx, cancel := context.WithCancel(o.ctx)
	e := &entry{
		action: action,
		lanes:  lanes,
		debits: debits,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.actions[action.ID] = e
	for _, l := range lanes {
		o.lanes[l] = action.ID
	}
	o.wg.Add(1)
	o.mu.Unlock()

	o.emit(model.Transition{
		ActionID: action.ID,
		Kind:     action.Kind,
		To:       model.StateIdle,
		Account:  action.Account,
		At:       now.Format(time.RFC3339Nano),
	})
	o.logger.Info("action accepted", zap.Uint64("action", action.ID), zap.String("kind", string(action.Kind)), zap.String("account", action.Account))

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(actionCtx, action.ID)
	}()

	return action, nil
}

// Cancel aborts an action that has not yet broadcast its main write.
func (o *Orchestrator) Cancel(id uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.actions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAction, id)
	}
	if e.broadcast || e.action.State.Terminal() {
		return fmt.Errorf("%w: action %d is %s", ErrNotCancellable, id, e.action.State)
	}
	e.cancelled = true
	e.cancel()
	return nil
}

// Get returns a copy of the action.
func (o *Orchestrator) Get(id uint64) (model.PendingAction, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.actions[id]
	if !ok {
		return model.PendingAction{}, fmt.Errorf("%w: %d", ErrUnknownAction, id)
	}
	return e.action, nil
}

// Active returns the non-terminal actions ordered by ID.
func (o *Orchestrator) Active() []model.PendingAction {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.PendingAction, 0, len(o.actions))
	for _, e := range o.actions {
		if !e.action.State.Terminal() {
			out = append(out, e.action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until the action is terminal or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id uint64) (model.PendingAction, error) {
	o.mu.Lock()
	e, ok := o.actions[id]
	o.mu.Unlock()
	if !ok {
		return model.PendingAction{}, fmt.Errorf("%w: %d", ErrUnknownAction, id)
	}

	select {
	case <-e.done:
		return o.Get(id)
	case <-ctx.Done():
		return model.PendingAction{}, ctx.Err()
	}
}

// Subscribe returns a stream of transitions. A subscriber that falls more than
// buffer events behind misses events. The returned func ends the subscription.
func (o *Orchestrator) Subscribe(buffer int) (<-chan model.Transition, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.Transition, buffer)

	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			close(ch)
			o.subMu.Unlock()
		})
	}
}

// Close cancels running actions and waits for them to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) prepare(req Request) (model.PendingAction, []debit, []lane, error) {
	account, ok := o.mirror.Account()
	if !ok {
		return model.PendingAction{}, nil, nil, fmt.Errorf("%w: no active account", ErrInvalidInput)
	}
	assets := o.mirror.Assets()
	if assets[0].Address == "" || assets[1].Address == "" {
		return model.PendingAction{}, nil, nil, fmt.Errorf("%w: pool state not loaded", ErrInvalidInput)
	}
	snap := o.mirror.Snapshot()
	if !snap.HeldBy(account) || !assets[0].HeldBy(account) || !assets[1].HeldBy(account) {
		return model.PendingAction{}, nil, nil, fmt.Errorf("%w: pool state not loaded for %s", ErrInvalidInput, account.Hex())
	}
	asset := func(side model.Side) common.Address {
		if side == model.Side1 {
			return assets[1].AddressValue()
		}
		return assets[0].AddressValue()
	}

	action := model.PendingAction{Kind: req.Kind, Account: account.Hex()}
	switch req.Kind {
	case model.ActionGrant:
		if !req.Side.Valid() {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: side %d", ErrInvalidInput, req.Side)
		}
		action.Side = req.Side
		return action, nil, []lane{{asset: asset(req.Side), op: "grant"}}, nil

	case model.ActionSwap:
		if !req.Direction.Valid() {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: direction %q", ErrInvalidInput, req.Direction)
		}
		if req.AmountIn.IsZero() {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: swap amount must be positive", ErrInvalidInput)
		}
		in := req.Direction.Input()
		action.Direction = req.Direction
		action.Side = in
		action.AmountIn = req.AmountIn
		return action,
			[]debit{{asset: asset(in), amount: req.AmountIn, side: in}},
			[]lane{{asset: asset(in), op: string(req.Direction)}},
			nil

	case model.ActionAddLiquidity:
		if req.Amount0.IsZero() || req.Amount1.IsZero() {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: both deposit amounts must be positive", ErrInvalidInput)
		}
		action.Amount0 = req.Amount0
		action.Amount1 = req.Amount1
		return action,
			[]debit{
				{asset: asset(model.Side0), amount: req.Amount0, side: model.Side0},
				{asset: asset(model.Side1), amount: req.Amount1, side: model.Side1},
			},
			[]lane{{asset: asset(model.Side0), op: "deposit"}, {asset: asset(model.Side1), op: "deposit"}},
			nil

	case model.ActionRemoveLiquidity:
		if req.Shares.IsZero() {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: shares must be positive", ErrInvalidInput)
		}
		if held := snap.CallerShares; req.Shares.Gt(held) {
			return model.PendingAction{}, nil, nil, fmt.Errorf("%w: shares %s exceed held %s", ErrInvalidInput, req.Shares, held)
		}
		action.Shares = req.Shares
		return action, nil, []lane{{asset: o.ledger.Address(), op: "withdraw"}}, nil

	default:
		return model.PendingAction{}, nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, req.Kind)
	}
}

func (o *Orchestrator) run(ctx context.Context, id uint64) {
	o.mu.Lock()
	e := o.actions[id]
	action := e.action
	debits := e.debits
	o.mu.Unlock()

	from := common.HexToAddress(action.Account)
	log := o.logger.With(zap.Uint64("action", id), zap.String("kind", string(action.Kind)))

	if action.Kind == model.ActionGrant {
		assets := o.mirror.Assets()
		debits = []debit{{asset: assets[action.Side].AddressValue(), side: action.Side}}
		if err := o.grant(ctx, id, from, debits); err != nil {
			o.fail(id, err, log)
			return
		}
		o.settle(id, log)
		return
	}

	var pending []debit
	assets := o.mirror.Assets()
	for _, d := range debits {
		if assets[d.side].NeedsGrant(d.amount) {
			pending = append(pending, d)
		}
	}
	if len(pending) > 0 {
		if err := o.grant(ctx, id, from, pending); err != nil {
			o.fail(id, err, log)
			return
		}
	}

	if err := o.markBroadcast(ctx, id); err != nil {
		o.fail(id, err, log)
		return
	}

	hash, err := o.write(ctx, from, action)
	if err != nil {
		o.fail(id, err, log)
		return
	}
	o.update(id, func(a *model.PendingAction) { a.TxHash = hash.Hex() })
	log.Info("write submitted, waiting for settlement", zap.String("tx", hash.Hex()))

	if err := o.ledger.WaitSettled(ctx, hash); err != nil {
		o.fail(id, err, log)
		return
	}
	o.settle(id, log)
}

// grant approves the pool for the maximum amount on every asset in debits and
// waits for each approval to be mined.
func (o *Orchestrator) grant(ctx context.Context, id uint64, from common.Address, debits []debit) error {
	o.transition(id, model.StateAwaitingAllowance, nil)
	for _, d := range debits {
		hash, err := o.ledger.Approve(ctx, from, d.asset, units.Max())
		if err != nil {
			return o.cancelCause(id, fmt.Errorf("approve %s: %w", d.asset.Hex(), err))
		}
		o.update(id, func(a *model.PendingAction) { a.GrantTxs = append(a.GrantTxs, hash.Hex()) })
		if err := o.ledger.WaitSettled(ctx, hash); err != nil {
			return o.cancelCause(id, fmt.Errorf("approve %s: %w", d.asset.Hex(), err))
		}
	}
	o.transition(id, model.StateAllowanceGranted, nil)
	return nil
}

// markBroadcast moves the action to submitting unless it was cancelled.
// From here on Cancel is refused.
func (o *Orchestrator) markBroadcast(ctx context.Context, id uint64) error {
	o.mu.Lock()
	e := o.actions[id]
	if e.cancelled {
		o.mu.Unlock()
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	e.broadcast = true
	o.mu.Unlock()

	o.transition(id, model.StateSubmitting, nil)
	return nil
}

func (o *Orchestrator) write(ctx context.Context, from common.Address, action model.PendingAction) (common.Hash, error) {
	switch action.Kind {
	case model.ActionSwap:
		assets := o.mirror.Assets()
		return o.ledger.Swap(ctx, from, assets[action.Side].AddressValue(), action.AmountIn)
	case model.ActionAddLiquidity:
		return o.ledger.AddLiquidity(ctx, from, action.Amount0, action.Amount1)
	case model.ActionRemoveLiquidity:
		return o.ledger.RemoveLiquidity(ctx, from, action.Shares)
	default:
		return common.Hash{}, fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

// settle refreshes the mirror and then marks the action settled.
func (o *Orchestrator) settle(id uint64, log *zap.Logger) {
	if err := o.mirror.Reload(o.ctx); err != nil {
		log.Warn("reload after settlement failed", zap.Error(err))
	}
	o.transition(id, model.StateSettled, nil)
	log.Info("action settled")
}

func (o *Orchestrator) fail(id uint64, err error, log *zap.Logger) {
	o.transition(id, model.StateFailed, err)
	log.Warn("action failed", zap.Error(err))
	if o.cfg.RefreshOnFailure {
		if rerr := o.mirror.Reload(o.ctx); rerr != nil {
			log.Warn("reload after failure failed", zap.Error(rerr))
		}
	}
}

// cancelCause tags err as a cancellation when Cancel was called for id.
func (o *Orchestrator) cancelCause(id uint64, err error) error {
	o.mu.Lock()
	cancelled := o.actions[id].cancelled
	o.mu.Unlock()
	if cancelled && !errors.Is(err, ErrCancelled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return err
}

func (o *Orchestrator) update(id uint64, fn func(a *model.PendingAction)) {
	o.mu.Lock()
	if e, ok := o.actions[id]; ok {
		fn(&e.action)
		e.action.UpdatedAt = time.Now().UTC()
	}
	o.mu.Unlock()
}

// transition moves the action to state. A terminal state releases the lanes.
func (o *Orchestrator) transition(id uint64, state model.ActionState, cause error) {
	now := time.Now().UTC()

	o.mu.Lock()
	e := o.actions[id]
	from := e.action.State
	e.action.State = state
	e.action.UpdatedAt = now
	if cause != nil {
		e.action.Err = cause.Error()
	}
	t := model.Transition{
		ActionID: id,
		Kind:     e.action.Kind,
		From:     from,
		To:       state,
		Account:  e.action.Account,
		TxHash:   e.action.TxHash,
		Error:    e.action.Err,
		At:       now.Format(time.RFC3339Nano),
	}
	if state.Terminal() {
		for _, l := range e.lanes {
			if o.lanes[l] == id {
				delete(o.lanes, l)
			}
		}
		metrics.ActionDuration.WithLabelValues(string(e.action.Kind), string(state)).Observe(now.Sub(e.action.CreatedAt).Seconds())
	}
	o.mu.Unlock()

	o.emit(t)
	if state.Terminal() {
		close(e.done)
	}
}

func (o *Orchestrator) emit(t model.Transition) {
	metrics.ActionTransitions.WithLabelValues(string(t.Kind), string(t.To)).Inc()

	o.subMu.Lock()
	for _, ch := range o.subs {
		select {
		case ch <- t:
		default:
			o.logger.Warn("transition subscriber is slow, dropping event", zap.Uint64("action", t.ActionID), zap.String("state", string(t.To)))
		}
	}
	o.subMu.Unlock()

	if o.cfg.Journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := o.cfg.Journal.PutTransitionBatch(ctx, []model.Transition{t}); err != nil {
			o.logger.Warn("journal transition failed", zap.Uint64("action", t.ActionID), zap.Error(err))
		}
	}
}

package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront-cart/internal/cache"
	"github.com/fjod/storefront-cart/internal/credential"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/logger"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/remote"
)

const (
	DefaultRefreshInterval = 120 * time.Second
	DefaultFollowUpDelay   = 300 * time.Millisecond
)

// Store is the remote cart API as the manager sees it.
type Store interface {
	WhoAmI(ctx context.Context, token string) (domain.Member, error)
	ListLines(ctx context.Context, token, memberID string) ([]domain.CartLine, error)
	CreateLine(ctx context.Context, token string, req remote.CreateLineRequest) (domain.CartLine, error)
	UpdateLine(ctx context.Context, token string, req remote.UpdateLineRequest) error
	DeleteLine(ctx context.Context, token, lineID string) error
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

func WithSnapshotCache(c cache.SnapshotCache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.refreshInterval = d }
}

// WithFollowUpDelay sets how long after a successful create the manager
// resyncs to replace the placeholder with the authoritative line.
func WithFollowUpDelay(d time.Duration) Option {
	return func(m *Manager) { m.followUpDelay = d }
}

// Manager holds the client-side view of one member's cart. It is created
// once per session and shared by every consumer.
//
// State is guarded by mu, which is never held across a remote call: every
// operation mutates local state, releases the lock, suspends on the network
// and re-acquires the lock to apply the outcome.
type Manager struct {
	store    Store
	creds    credential.Source
	notifier notify.Notifier
	log      logrus.FieldLogger
	cache    cache.SnapshotCache
	tracer   trace.Tracer

	refreshInterval time.Duration
	followUpDelay   time.Duration

	mu            sync.Mutex
	lines         []domain.CartLine
	count         int
	loading       bool
	memberID      string
	identityToken string
	generation    uint64
	pending       map[string]chan struct{} // line id -> closed when its create/delete settles
	aliases       map[string]string        // local id -> server id
	placeholders  map[string]struct{}      // local ids not yet replaced by a server id

	sf singleflight.Group

	lifeMu  sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

func New(store Store, creds credential.Source, opts ...Option) *Manager {
	m := &Manager{
		store:           store,
		creds:           creds,
		notifier:        notify.Nop{},
		log:             logger.Discard(),
		tracer:          otel.Tracer("github.com/fjod/storefront-cart/internal/cart"),
		refreshInterval: DefaultRefreshInterval,
		followUpDelay:   DefaultFollowUpDelay,
		pending:         make(map[string]chan struct{}),
		aliases:         make(map[string]string),
		placeholders:    make(map[string]struct{}),
		timers:          make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.runCtx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Start loads the cart (from the snapshot cache first, when one is
// configured) and begins periodic refreshes. The refresh loop runs until
// ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.started || m.closed {
		m.lifeMu.Unlock()
		return nil
	}
	m.started = true
	m.wg.Add(1)
	m.lifeMu.Unlock()

	go m.refreshLoop(ctx)

	m.warmStart(ctx)
	return m.Resync(ctx)
}

func (m *Manager) refreshLoop(ctx context.Context) {
	defer m.wg.Done()
	if m.refreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Resync(m.runCtx); err != nil {
				m.log.WithError(err).Debug("periodic cart refresh failed")
			}
		case <-ctx.Done():
			return
		case <-m.runCtx.Done():
			return
		}
	}
}

// Close stops background work and discards the cart.
func (m *Manager) Close() {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	for t := range m.timers {
		if t.Stop() {
			m.wg.Done()
		}
	}
	m.timers = nil
	m.lifeMu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

func (m *Manager) scheduleResync(delay time.Duration) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return
	}
	m.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer m.wg.Done()
		m.lifeMu.Lock()
		delete(m.timers, t)
		m.lifeMu.Unlock()
		if m.runCtx.Err() != nil {
			return
		}
		if err := m.Resync(m.runCtx); err != nil {
			m.log.WithError(err).Debug("follow-up cart refresh failed")
		}
	})
	m.timers[t] = struct{}{}
}

// Snapshot returns a copy of the current cart.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Snapshot{
		MemberID:   m.memberID,
		Lines:      domain.CloneLines(m.lines),
		Count:      m.count,
		TotalPrice: domain.TotalPrice(m.lines),
		Loading:    m.loading,
	}
}

func (m *Manager) Lines() []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneLines(m.lines)
}

// Count is the sum of quantities over all lines.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

func (m *Manager) MemberID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberID
}

// Resync replaces local state with the remote cart. Concurrent calls share
// one remote fetch. A missing credential empties the cart without error.
//
// The shared fetch is detached from the caller that started it and stops
// only when the manager is closed; a cancelled caller returns early while
// the others keep waiting on the result.
func (m *Manager) Resync(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "cart.Resync")
	ch := m.sf.DoChan("resync", func() (any, error) {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(m.runCtx, cancel)
		defer stop()
		return nil, m.resync(fctx)
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
		span.SetAttributes(attribute.Bool("cart.resync.shared", res.Shared))
	case <-ctx.Done():
		err = ctx.Err()
	}
	endSpan(span, err)
	return err
}

func (m *Manager) resync(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	member, token, err := m.identity(ctx)
	if errors.Is(err, ErrUnauthenticated) {
		m.mu.Lock()
		m.resetLocked()
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.notifyError(ctx, "could not load the cart", err)
		return err
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	fetched, err := m.store.ListLines(ctx, token, member)
	if err != nil {
		if identityRejected(err) {
			m.forgetIdentity()
		}
		err = classify(err)
		m.notifyError(ctx, "could not load the cart", err)
		return err
	}
	lines := m.ingest(fetched)

	m.mu.Lock()
	if m.generation != gen || m.memberID != member || m.runCtx.Err() != nil {
		// cleared, signed out or closed while the fetch was in flight
		m.mu.Unlock()
		return nil
	}
	m.lines = lines
	m.aliases = make(map[string]string)
	m.placeholders = make(map[string]struct{})
	m.recountLocked()
	snapshot := domain.CloneLines(lines)
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.Set(ctx, member, snapshot); err != nil {
			m.log.WithError(err).WithContext(ctx).Warn("cart snapshot cache set failed")
		}
	}
	return nil
}

// ingest repairs fetched lines so that every line carries a canonical
// product id, a positive quantity and the Confirmed state.
func (m *Manager) ingest(src []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(src))
	seen := make(map[domain.ProductID]bool, len(src))
	for _, l := range src {
		if l.ProductID.IsZero() && !l.Product.ID.IsZero() {
			m.log.WithField("line_id", l.ID).Debug("line without productId, using product.id")
			l.ProductID = l.Product.ID
		}
		if l.Product.ID.IsZero() {
			l.Product.ID = l.ProductID
		}
		if l.ID == "" || l.ProductID.IsZero() || l.Qty <= 0 {
			m.log.WithFields(logrus.Fields{"line_id": l.ID, "product_id": l.ProductID, "qty": l.Qty}).
				Warn("dropping malformed cart line")
			continue
		}
		if seen[l.ProductID] {
			m.log.WithField("product_id", l.ProductID).Warn("remote cart holds more than one line for a product")
		}
		seen[l.ProductID] = true
		l.State = domain.Confirmed
		out = append(out, l)
	}
	return out
}

func (m *Manager) warmStart(ctx context.Context) {
	if m.cache == nil {
		return
	}
	member, _, err := m.identity(ctx)
	if err != nil {
		return
	}
	cached, err := m.cache.Get(ctx, member)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.log.WithError(err).WithContext(ctx).Warn("cart snapshot cache get failed")
		}
		return
	}
	lines := m.ingest(cached)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lines) == 0 && m.memberID == member {
		m.lines = lines
		m.recountLocked()
	}
}

// AddItem adds qty units of a product. A line for the product is updated in
// place; otherwise a placeholder line is inserted and created remotely. The
// local cart reflects the change before the remote call is issued.
func (m *Manager) AddItem(ctx context.Context, productID string, qty int) (err error) {
	ctx, span := m.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.String("cart.product_id", productID),
		attribute.Int("cart.qty", qty),
	))
	defer func() { endSpan(span, err) }()

	pid := domain.NormalizeProductID(productID)
	if pid.IsZero() {
		m.notifyError(ctx, "could not add item to the cart", ErrInvalidProduct)
		return ErrInvalidProduct
	}
	if qty <= 0 {
		m.notifyError(ctx, "quantity must be greater than zero", ErrInvalidQuantity)
		return ErrInvalidQuantity
	}

	member, token, err := m.identity(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			m.notifyError(ctx, "please sign in before adding items to the cart", err)
		} else {
			m.notifyError(ctx, "could not add item to the cart", err)
		}
		return err
	}
	return m.addItem(ctx, member, token, pid, qty, true)
}

func (m *Manager) addItem(ctx context.Context, member, token string, pid domain.ProductID, qty int, retry bool) error {
	m.mu.Lock()
	idx := m.indexByProductLocked(pid)
	if idx < 0 {
		line := domain.CartLine{
			ID:        domain.NewLocalID(),
			MemberID:  member,
			ProductID: pid,
			Qty:       qty,
			Product:   domain.PlaceholderProduct(pid),
			State:     domain.PendingCreate,
		}
		done := make(chan struct{})
		m.pending[line.ID] = done
		m.placeholders[line.ID] = struct{}{}
		m.lines = append(m.lines, line)
		m.recountLocked()
		m.mu.Unlock()
		return m.create(ctx, member, token, line, done)
	}

	l := &m.lines[idx]
	switch {
	case l.State == domain.PendingCreate:
		// the in-flight create carries the old quantity; accumulate locally,
		// wait for it, then push the total
		l.Qty += qty
		m.recountLocked()
		done := m.pending[l.ID]
		m.mu.Unlock()
		if err := wait(ctx, done); err != nil {
			return m.rollback(ctx, "could not add item to the cart", err)
		}
		return m.afterCreateSettled(ctx, member, token, pid, qty, retry)

	case l.State == domain.PendingDelete:
		done := m.pending[l.ID]
		m.mu.Unlock()
		if err := wait(ctx, done); err != nil {
			return m.rollback(ctx, "could not add item to the cart", err)
		}
		if !retry {
			return m.rollback(ctx, "could not add item to the cart", ErrLinePending)
		}
		return m.addItem(ctx, member, token, pid, qty, false)

	default:
		newQty := l.Qty + qty
		id := l.ID
		l.Qty = newQty
		l.State = domain.PendingUpdate
		m.recountLocked()
		m.mu.Unlock()
		return m.pushQty(ctx, member, token, id, pid, newQty, "could not update item quantity")
	}
}

func (m *Manager) afterCreateSettled(ctx context.Context, member, token string, pid domain.ProductID, delta int, retry bool) error {
	m.mu.Lock()
	idx := m.indexByProductLocked(pid)
	if idx >= 0 {
		l := &m.lines[idx]
		if !m.isPlaceholderLocked(l.ID) && l.State != domain.PendingDelete {
			id, qty := l.ID, l.Qty
			l.State = domain.PendingUpdate
			m.mu.Unlock()
			return m.pushQty(ctx, member, token, id, pid, qty, "could not update item quantity")
		}
	}
	m.mu.Unlock()

	if !retry {
		return m.rollback(ctx, "could not add item to the cart", ErrLinePending)
	}
	// the placeholder is gone or the API did not return its id: start over
	// from the authoritative cart
	if err := m.Resync(ctx); err != nil {
		return err
	}
	return m.addItem(ctx, member, token, pid, delta, false)
}

func (m *Manager) create(ctx context.Context, member, token string, line domain.CartLine, done chan struct{}) error {
	created, err := m.store.CreateLine(ctx, token, remote.CreateLineRequest{
		MemberID:  member,
		ProductID: line.ProductID,
		Qty:       line.Qty,
	})

	m.mu.Lock()
	delete(m.pending, line.ID)
	close(done)
	if err == nil && created.ID != "" && created.ID != line.ID {
		delete(m.placeholders, line.ID)
		if idx := m.indexByIDLocked(line.ID); idx >= 0 {
			l := &m.lines[idx]
			l.ID = created.ID
			l.State = domain.Confirmed
			if created.Product.Name != "" {
				l.Product = created.Product
				l.Product.ID = l.ProductID
			}
			m.aliases[line.ID] = created.ID
		}
	}
	m.mu.Unlock()

	if err != nil {
		return m.rollback(ctx, "could not add item to the cart", err)
	}
	m.scheduleResync(m.followUpDelay)
	return nil
}

// UpdateItem sets the absolute quantity of a line. A quantity of zero or
// less removes the line. productID is used to find the line when lineID is a
// placeholder that has since been replaced.
func (m *Manager) UpdateItem(ctx context.Context, lineID, productID string, qty int) (err error) {
	if qty <= 0 {
		return m.removeItem(ctx, lineID, domain.NormalizeProductID(productID))
	}

	ctx, span := m.tracer.Start(ctx, "cart.UpdateItem", trace.WithAttributes(
		attribute.String("cart.line_id", lineID),
		attribute.Int("cart.qty", qty),
	))
	defer func() { endSpan(span, err) }()

	member, token, err := m.identity(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			m.notifyError(ctx, "please sign in before updating the cart", err)
		} else {
			m.notifyError(ctx, "could not update item quantity", err)
		}
		return err
	}

	line, err := m.claim(ctx, lineID, domain.NormalizeProductID(productID), func(l *domain.CartLine) {
		l.Qty = qty
		l.State = domain.PendingUpdate
	})
	if err != nil {
		return m.rollback(ctx, "could not update item quantity", err)
	}
	return m.pushQty(ctx, member, token, line.ID, line.ProductID, qty, "could not update item quantity")
}

func (m *Manager) pushQty(ctx context.Context, member, token, id string, pid domain.ProductID, qty int, failMsg string) error {
	err := m.store.UpdateLine(ctx, token, remote.UpdateLineRequest{
		ID:        id,
		MemberID:  member,
		ProductID: pid,
		Qty:       qty,
	})
	if err != nil {
		return m.rollback(ctx, failMsg, err)
	}

	m.mu.Lock()
	if idx := m.indexByIDLocked(id); idx >= 0 {
		l := &m.lines[idx]
		// a later update may still be in flight
		if l.State == domain.PendingUpdate && l.Qty == qty {
			l.State = domain.Confirmed
		}
	}
	m.mu.Unlock()
	return nil
}

// RemoveItem deletes a line remotely and, once that succeeds, locally.
// While the delete is in flight the line stays visible as PendingDelete.
func (m *Manager) RemoveItem(ctx context.Context, lineID string) error {
	return m.removeItem(ctx, lineID, "")
}

func (m *Manager) removeItem(ctx context.Context, lineID string, pid domain.ProductID) (err error) {
	ctx, span := m.tracer.Start(ctx, "cart.RemoveItem", trace.WithAttributes(
		attribute.String("cart.line_id", lineID),
	))
	defer func() { endSpan(span, err) }()

	_, token, err := m.identity(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			m.notifyError(ctx, "please sign in before removing items", err)
		} else {
			m.notifyError(ctx, "could not remove item from the cart", err)
		}
		return err
	}

	done := make(chan struct{})
	var prev domain.LineState
	line, err := m.claim(ctx, lineID, pid, func(l *domain.CartLine) {
		prev = l.State
		l.State = domain.PendingDelete
		m.pending[l.ID] = done
	})
	if err != nil {
		return m.rollback(ctx, "could not remove item from the cart", err)
	}

	err = m.store.DeleteLine(ctx, token, line.ID)

	m.mu.Lock()
	delete(m.pending, line.ID)
	close(done)
	if idx := m.indexByIDLocked(line.ID); idx >= 0 {
		if err == nil {
			m.lines = append(m.lines[:idx], m.lines[idx+1:]...)
		} else {
			m.lines[idx].State = prev
		}
	}
	m.recountLocked()
	m.mu.Unlock()

	if err != nil {
		return m.rollback(ctx, "could not remove item from the cart", err)
	}
	m.notifier.Notify(ctx, notify.Notification{Level: notify.LevelSuccess, Message: "item removed from the cart", At: time.Now()})
	return nil
}

// claim finds the line addressed by lineID (or, failing that, productID),
// waits out an in-flight create or delete on it, and applies fn under the
// lock once the line has a server id. It never hands out a local id.
func (m *Manager) claim(ctx context.Context, lineID string, pid domain.ProductID, fn func(*domain.CartLine)) (domain.CartLine, error) {
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		idx := m.resolveLocked(lineID, pid)
		if idx < 0 {
			m.mu.Unlock()
			return domain.CartLine{}, ErrLineNotFound
		}
		l := &m.lines[idx]
		if pid.IsZero() {
			pid = l.ProductID
		}
		if l.State != domain.PendingDelete && !m.isPlaceholderLocked(l.ID) {
			fn(l)
			m.recountLocked()
			out := *l
			m.mu.Unlock()
			return out, nil
		}
		done := m.pending[l.ID]
		m.mu.Unlock()

		if attempt >= 2 {
			return domain.CartLine{}, ErrLinePending
		}
		if done != nil {
			if err := wait(ctx, done); err != nil {
				return domain.CartLine{}, err
			}
			continue
		}
		// created remotely without an id in the response
		if err := m.Resync(ctx); err != nil {
			return domain.CartLine{}, err
		}
		lineID = ""
	}
}

// Clear drops local state immediately without calling the remote store.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	m.aliases = make(map[string]string)
	m.placeholders = make(map[string]struct{})
	m.generation++
	m.recountLocked()
}

// ClearMember clears the cart if memberID is the signed-in member. It
// reports whether anything was cleared.
func (m *Manager) ClearMember(ctx context.Context, memberID string) bool {
	if memberID == "" || memberID != m.MemberID() {
		return false
	}
	m.Clear()
	if m.cache != nil {
		if err := m.cache.Delete(ctx, memberID); err != nil {
			m.log.WithError(err).WithContext(ctx).Warn("cart snapshot cache delete failed")
		}
	}
	return true
}

// SignOut forgets the member and the cart.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	member := m.memberID
	m.resetLocked()
	m.mu.Unlock()

	if m.cache != nil && member != "" {
		if err := m.cache.Delete(ctx, member); err != nil {
			m.log.WithError(err).WithContext(ctx).Warn("cart snapshot cache delete failed")
		}
	}
}

// identity resolves the member behind the current credential. The lookup is
// cached per token.
func (m *Manager) identity(ctx context.Context) (member, token string, err error) {
	token, err = m.creds.Token(ctx)
	if err != nil {
		return "", "", classify(errors.Join(credential.ErrNoCredential, err))
	}

	m.mu.Lock()
	if m.memberID != "" && m.identityToken == token {
		member = m.memberID
		m.mu.Unlock()
		return member, token, nil
	}
	m.mu.Unlock()

	who, err := m.store.WhoAmI(ctx, token)
	if err != nil {
		if identityRejected(err) {
			return "", "", classify(errors.Join(credential.ErrNoCredential, err))
		}
		return "", "", classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberID != who.ID {
		// a different member signed in; the old cart is not theirs
		m.resetLocked()
	}
	m.memberID = who.ID
	m.identityToken = token
	return who.ID, token, nil
}

func (m *Manager) forgetIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identityToken = ""
}

// rollback reports a failed operation and replaces local speculation with
// the remote cart. The recovery resync outlives a cancelled caller.
func (m *Manager) rollback(ctx context.Context, msg string, err error) error {
	if identityRejected(err) {
		m.forgetIdentity()
	}
	err = classify(err)
	m.notifyError(ctx, msg, err)
	if rerr := m.Resync(context.WithoutCancel(ctx)); rerr != nil {
		m.log.WithError(rerr).WithContext(ctx).Debug("recovery resync failed")
	}
	return err
}

func (m *Manager) notifyError(ctx context.Context, msg string, err error) {
	m.log.WithError(err).WithContext(ctx).Warn(msg)
	m.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: msg, At: time.Now()})
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = v
}

func (m *Manager) resetLocked() {
	m.lines = nil
	m.memberID = ""
	m.identityToken = ""
	m.aliases = make(map[string]string)
	m.placeholders = make(map[string]struct{})
	m.generation++
	m.recountLocked()
}

func (m *Manager) recountLocked() {
	m.count = domain.TotalQty(m.lines)
}

// isPlaceholderLocked reports whether id was minted locally for a line whose
// create has not returned a server id.
func (m *Manager) isPlaceholderLocked(id string) bool {
	_, ok := m.placeholders[id]
	return ok
}

func (m *Manager) indexByProductLocked(pid domain.ProductID) int {
	for i := range m.lines {
		if m.lines[i].ProductID == pid {
			return i
		}
	}
	return -1
}

func (m *Manager) indexByIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.lines {
		if m.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) resolveLocked(lineID string, pid domain.ProductID) int {
	if idx := m.indexByIDLocked(lineID); idx >= 0 {
		return idx
	}
	if alias, ok := m.aliases[lineID]; ok {
		if idx := m.indexByIDLocked(alias); idx >= 0 {
			return idx
		}
	}
	if !pid.IsZero() {
		return m.indexByProductLocked(pid)
	}
	return -1
}

func wait(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

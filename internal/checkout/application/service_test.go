package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdomain "github.com/mkarpenka/glowshop/internal/cart/domain"
	"github.com/mkarpenka/glowshop/internal/checkout/domain"
	crmdomain "github.com/mkarpenka/glowshop/internal/crm/domain"
	"github.com/mkarpenka/glowshop/pkg/metrics"
)

type fakeProduct struct {
	name       string
	priceCents int64
	stock      int
}

type fakeEvent struct {
	aggregateID string
	eventType   string
	payload     []byte
}

type state struct {
	carts     map[string]cartdomain.Cart
	lines     map[int64]map[int64]int
	products  map[int64]fakeProduct
	clients   map[int64]crmdomain.Client
	addresses map[int64]crmdomain.DeliveryAddress
	orders    []domain.Order
	statusLog []domain.StatusEntry
	events    []fakeEvent

	nextOrderID int64
	nextEntryID int64
	clock       time.Time
}

func (s *state) clone() *state {
	c := &state{
		carts:       map[string]cartdomain.Cart{},
		lines:       map[int64]map[int64]int{},
		products:    map[int64]fakeProduct{},
		clients:     map[int64]crmdomain.Client{},
		addresses:   map[int64]crmdomain.DeliveryAddress{},
		orders:      append([]domain.Order(nil), s.orders...),
		statusLog:   append([]domain.StatusEntry(nil), s.statusLog...),
		events:      append([]fakeEvent(nil), s.events...),
		nextOrderID: s.nextOrderID,
		nextEntryID: s.nextEntryID,
		clock:       s.clock,
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for cartID, items := range s.lines {
		m := map[int64]int{}
		for pid, qty := range items {
			m[pid] = qty
		}
		c.lines[cartID] = m
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	return c
}

func (s *state) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// fakeStore mimics single-database-instance semantics: transactions run
// one at a time against a cloned state that replaces the real one only on
// commit, so a failed transaction leaves nothing behind.
type fakeStore struct {
	mu sync.Mutex
	st *state

	failInsertOnce   bool
	failInsertAlways bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{st: &state{
		carts:     map[string]cartdomain.Cart{},
		lines:     map[int64]map[int64]int{},
		products:  map[int64]fakeProduct{},
		clients:   map[int64]crmdomain.Client{},
		addresses: map[int64]crmdomain.DeliveryAddress{},
		clock:     time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC),
	}}
}

func (f *fakeStore) RunInTx(_ context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	work := f.st.clone()
	if err := fn(&fakeTx{store: f, st: work}); err != nil {
		return err
	}
	f.st = work
	return nil
}

func (f *fakeStore) OrderByCode(_ context.Context, code string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.st.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (f *fakeStore) Orders(_ context.Context) ([]domain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Summary, 0, len(f.st.orders))
	for _, o := range f.st.orders {
		current, _ := latestEntry(f.st.statusLog, o.ID)
		out = append(out, domain.Summary{
			ID: o.ID, Code: o.Code, CreatedAt: o.CreatedAt,
			TotalCents: o.TotalCents, Status: current.Status,
		})
	}
	return out, nil
}

func (f *fakeStore) CurrentStatus(_ context.Context, orderID int64) (domain.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := latestEntry(f.st.statusLog, orderID)
	if !ok {
		return domain.StatusEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (f *fakeStore) StatusLog(_ context.Context, orderID int64) ([]domain.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusEntry
	for _, e := range f.st.statusLog {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendStatusLogged(_ context.Context, orderCode string, entry *domain.StatusEntry, payload []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.nextEntryID++
	entry.ID = f.st.nextEntryID
	entry.ChangedAt = f.st.tick()
	f.st.statusLog = append(f.st.statusLog, *entry)
	f.st.events = append(f.st.events, fakeEvent{aggregateID: orderCode, eventType: domain.EventOrderStatusChanged, payload: payload})
	return nil
}

func latestEntry(log []domain.StatusEntry, orderID int64) (domain.StatusEntry, bool) {
	var (
		best  domain.StatusEntry
		found bool
	)
	for _, e := range log {
		if e.OrderID != orderID {
			continue
		}
		if !found || e.ChangedAt.After(best.ChangedAt) || (e.ChangedAt.Equal(best.ChangedAt) && e.ID > best.ID) {
			best, found = e, true
		}
	}
	return best, found
}

type fakeTx struct {
	store *fakeStore
	st    *state
}

func (t *fakeTx) CartByOwner(_ context.Context, owner cartdomain.Owner) (cartdomain.Cart, error) {
	c, ok := t.st.carts[owner.String()]
	if !ok {
		return cartdomain.Cart{}, cartdomain.ErrNotFound
	}
	return c, nil
}

func (t *fakeTx) CartLines(_ context.Context, cartID int64) ([]cartdomain.Line, error) {
	var lines []cartdomain.Line
	for pid, qty := range t.st.lines[cartID] {
		p := t.st.products[pid]
		lines = append(lines, cartdomain.Line{
			ProductID: pid, Name: p.name, PriceCents: p.priceCents,
			Quantity: qty, Stock: p.stock,
		})
	}
	return lines, nil
}

func (t *fakeTx) ClientByID(_ context.Context, clientID int64) (crmdomain.Client, error) {
	c, ok := t.st.clients[clientID]
	if !ok {
		return crmdomain.Client{}, crmdomain.ErrNotFound
	}
	return c, nil
}

func (t *fakeTx) AddressForClient(_ context.Context, addressID, clientID int64) (crmdomain.DeliveryAddress, error) {
	a, ok := t.st.addresses[addressID]
	if !ok || a.ClientID != clientID {
		return crmdomain.DeliveryAddress{}, crmdomain.ErrNotFound
	}
	return a, nil
}

func (t *fakeTx) LastOrderSerial(_ context.Context, day time.Time) (int, error) {
	prefix := domain.CodeDayPrefix(day)
	last := 0
	for _, o := range t.st.orders {
		if !strings.HasPrefix(o.Code, prefix) {
			continue
		}
		serial, err := domain.SerialOf(o.Code)
		if err != nil {
			return 0, err
		}
		if serial > last {
			last = serial
		}
	}
	return last, nil
}

func (t *fakeTx) InsertOrder(_ context.Context, o *domain.Order) error {
	if t.store.failInsertOnce {
		t.store.failInsertOnce = false
		return ErrOrderCodeTaken
	}
	if t.store.failInsertAlways {
		return ErrOrderCodeTaken
	}
	for _, existing := range t.st.orders {
		if existing.Code == o.Code {
			return ErrOrderCodeTaken
		}
	}
	t.st.nextOrderID++
	o.ID = t.st.nextOrderID
	o.CreatedAt = t.st.tick()
	t.st.orders = append(t.st.orders, *o)
	return nil
}

func (t *fakeTx) InsertOrderItems(_ context.Context, orderID int64, items []domain.OrderItem) error {
	for i := range t.st.orders {
		if t.st.orders[i].ID == orderID {
			frozen := make([]domain.OrderItem, len(items))
			copy(frozen, items)
			for j := range frozen {
				frozen[j].OrderID = orderID
			}
			t.st.orders[i].Items = frozen
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *fakeTx) ReserveStock(_ context.Context, productID int64, quantity int) error {
	p, ok := t.st.products[productID]
	if !ok || p.stock < quantity {
		return ErrInsufficientStock
	}
	p.stock -= quantity
	t.st.products[productID] = p
	return nil
}

func (t *fakeTx) ClearCart(_ context.Context, cart cartdomain.Cart) error {
	delete(t.st.lines, cart.ID)
	if _, anonymous := cart.Owner.Token(); anonymous {
		delete(t.st.carts, cart.Owner.String())
	}
	return nil
}

func (t *fakeTx) AppendStatus(_ context.Context, entry *domain.StatusEntry) error {
	t.st.nextEntryID++
	entry.ID = t.st.nextEntryID
	entry.ChangedAt = t.st.tick()
	t.st.statusLog = append(t.st.statusLog, *entry)
	return nil
}

func (t *fakeTx) SaveEvent(_ context.Context, aggregateID, eventType string, payload []byte, _ string) error {
	t.st.events = append(t.st.events, fakeEvent{aggregateID: aggregateID, eventType: eventType, payload: payload})
	return nil
}

// --- fixtures ---

const testDay = "20250715"

func newTestService(store *fakeStore) *Service {
	svc := NewService(slog.Default(), store, metrics.NewCheckout(prometheus.NewRegistry()))
	svc.now = func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedClient(store *fakeStore, clientID, addressID int64) {
	store.st.clients[clientID] = crmdomain.Client{
		ID: clientID, FullName: "Ada Byron", Email: "ada@example.com", Phone: "5550001122", IsActive: true,
	}
	store.st.addresses[addressID] = crmdomain.DeliveryAddress{
		ID: addressID, ClientID: clientID, City: "Kyiv", Street: "Khreshchatyk 1", PostOffice: "12",
	}
}

func seedCart(store *fakeStore, owner cartdomain.Owner, cartID int64, items map[int64]int) {
	store.st.carts[owner.String()] = cartdomain.Cart{ID: cartID, Owner: owner}
	store.st.lines[cartID] = items
}

func TestCreateOrderHappyPath(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	store.st.products[2] = fakeProduct{name: "Cream", priceCents: 1000, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 2, 2: 1})

	svc := newTestService(store)
	order, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	assert.Equal(t, "ORD-"+testDay+"-0001", order.Code)
	assert.Equal(t, int64(2000), order.TotalCents)
	assert.Equal(t, "Ada Byron", order.SnapshotName)
	assert.Equal(t, "ada@example.com", order.SnapshotEmail)
	assert.Equal(t, "Kyiv, Khreshchatyk 1", order.SnapshotAddress)
	require.Len(t, order.Items, 2)

	assert.Equal(t, 3, store.st.products[1].stock)
	assert.Equal(t, 4, store.st.products[2].stock)
	assert.Empty(t, store.st.lines[100], "cart must be emptied")

	current, err := svc.CurrentStatus(context.Background(), order.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, current.Status)
	assert.Equal(t, systemActor, current.ChangedBy)

	require.Len(t, store.st.events, 1)
	assert.Equal(t, domain.EventOrderCreated, store.st.events[0].eventType)
	assert.Equal(t, order.Code, store.st.events[0].aggregateID)
}

func TestCreateOrderCodesMonotonicWithinDay(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 10}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	svc := newTestService(store)

	seedCart(store, owner, 100, map[int64]int{1: 1})
	first, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	seedCart(store, owner, 100, map[int64]int{1: 1})
	second, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	assert.Equal(t, "ORD-"+testDay+"-0001", first.Code)
	assert.Equal(t, "ORD-"+testDay+"-0002", second.Code)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	store := newFakeStore()
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	svc := newTestService(store)

	// No cart at all.
	_, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	assert.ErrorIs(t, err, ErrEmptyCart)

	// Cart exists but has no lines.
	seedCart(store, owner, 100, map[int64]int{})
	_, err = svc.CreateOrder(context.Background(), owner, 7, 3)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, store.st.orders)
}

func TestCreateOrderClientNotFound(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	owner := cartdomain.SessionOwner("tok-1")
	seedCart(store, owner, 100, map[int64]int{1: 1})
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), owner, 99, 3)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestCreateOrderAddressMustBelongToClient(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	store.st.clients[8] = crmdomain.Client{ID: 8, FullName: "Grace Hopper", Email: "grace@example.com"}
	owner := cartdomain.ClientOwner(8)
	seedCart(store, owner, 100, map[int64]int{1: 1})
	svc := newTestService(store)

	// Address 3 belongs to client 7, not client 8.
	_, err := svc.CreateOrder(context.Background(), owner, 8, 3)
	assert.ErrorIs(t, err, ErrAddressMismatch)

	_, err = svc.CreateOrder(context.Background(), owner, 8, 999)
	assert.ErrorIs(t, err, ErrAddressMismatch)
}

func TestCreateOrderInsufficientStockRollsBackEverything(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	store.st.products[2] = fakeProduct{name: "Cream", priceCents: 1000, stock: 2}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 2, 2: 3})
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing partially committed: no order, no stock change even on the
	// line that had enough, cart intact, no log entries, no events.
	assert.Empty(t, store.st.orders)
	assert.Equal(t, 5, store.st.products[1].stock)
	assert.Equal(t, 2, store.st.products[2].stock)
	assert.Equal(t, map[int64]int{1: 2, 2: 3}, store.st.lines[100])
	assert.Empty(t, store.st.statusLog)
	assert.Empty(t, store.st.events)
}

func TestCreateOrderConcurrentCheckoutsLastUnit(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 1}
	seedClient(store, 7, 3)
	store.st.clients[8] = crmdomain.Client{ID: 8, FullName: "Grace Hopper", Email: "grace@example.com"}
	store.st.addresses[4] = crmdomain.DeliveryAddress{ID: 4, ClientID: 8, City: "Lviv", Street: "Rynok 1"}

	ownerA := cartdomain.ClientOwner(7)
	ownerB := cartdomain.ClientOwner(8)
	seedCart(store, ownerA, 100, map[int64]int{1: 1})
	seedCart(store, ownerB, 200, map[int64]int{1: 1})
	svc := newTestService(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.CreateOrder(context.Background(), ownerA, 7, 3)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.CreateOrder(context.Background(), ownerB, 8, 4)
	}()
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrInsufficientStock):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one checkout wins the last unit")
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 0, store.st.products[1].stock)
	assert.Len(t, store.st.orders, 1)
}

func TestCreateOrderRetriesOnCodeCollision(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 1})
	store.failInsertOnce = true
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, "ORD-"+testDay+"-0001", order.Code)
	assert.Len(t, store.st.orders, 1)
}

func TestCreateOrderContentionAfterAllRetries(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 1})
	store.failInsertAlways = true
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	assert.ErrorIs(t, err, ErrCodeContention)
	assert.NotErrorIs(t, err, ErrOrderCodeTaken, "the internal sentinel stays internal")
	assert.Empty(t, store.st.orders)
}

func TestCreateOrderSerialSpaceExhausted(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 1})
	store.st.orders = append(store.st.orders, domain.Order{ID: 1, Code: "ORD-" + testDay + "-9999"})
	store.st.nextOrderID = 1
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	assert.ErrorIs(t, err, domain.ErrCodesExhausted)
}

func TestCreateOrderDetachesAnonymousCart(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.SessionOwner("tok-9")
	seedCart(store, owner, 100, map[int64]int{1: 1})
	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	_, exists := store.st.carts[owner.String()]
	assert.False(t, exists, "anonymous cart must be dropped so the token detaches")
}

func TestOrderSnapshotImmuneToLaterEdits(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 2})
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	// Back-office edits after purchase.
	store.st.products[1] = fakeProduct{name: "Serum Deluxe", priceCents: 9900, stock: 50}
	client := store.st.clients[7]
	client.FullName = "Renamed Client"
	store.st.clients[7] = client

	got, err := svc.OrderByCode(context.Background(), order.Code)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Serum", got.Items[0].ProductName)
	assert.Equal(t, int64(500), got.Items[0].PriceCents)
	assert.Equal(t, int64(1000), got.TotalCents)
	assert.Equal(t, "Ada Byron", got.SnapshotName)
}

func TestAppendStatusTransitionsAndNoOp(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 5}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	seedCart(store, owner, 100, map[int64]int{1: 1})
	svc := newTestService(store)

	order, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	entry, appended, err := svc.AppendStatus(context.Background(), order.Code, domain.StatusPaymentReceived, "olena", "paid by card")
	require.NoError(t, err)
	assert.True(t, appended)
	assert.Equal(t, domain.StatusPaymentReceived, entry.Status)
	assert.Equal(t, "olena", entry.ChangedBy)
	assert.Equal(t, "paid by card", entry.Comment)

	// Re-submitting the same status is a no-op.
	logBefore, err := svc.StatusLog(context.Background(), order.Code)
	require.NoError(t, err)
	_, appended, err = svc.AppendStatus(context.Background(), order.Code, domain.StatusPaymentReceived, "olena", "double click")
	require.NoError(t, err)
	assert.False(t, appended)
	logAfter, err := svc.StatusLog(context.Background(), order.Code)
	require.NoError(t, err)
	assert.Len(t, logAfter, len(logBefore))

	current, err := svc.CurrentStatus(context.Background(), order.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentReceived, current.Status)
}

func TestAppendStatusUnknownOrderAndInvalidStatus(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, _, err := svc.AppendStatus(context.Background(), "ORD-20250715-0001", domain.StatusCanceled, "olena", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.AppendStatus(context.Background(), "ORD-20250715-0001", domain.Status(42), "olena", "")
	assert.Error(t, err)
}

func TestOrdersListCarriesCurrentStatus(t *testing.T) {
	store := newFakeStore()
	store.st.products[1] = fakeProduct{name: "Serum", priceCents: 500, stock: 10}
	seedClient(store, 7, 3)
	owner := cartdomain.ClientOwner(7)
	svc := newTestService(store)

	seedCart(store, owner, 100, map[int64]int{1: 1})
	first, err := svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)
	_, _, err = svc.AppendStatus(context.Background(), first.Code, domain.StatusInProgress, "olena", "")
	require.NoError(t, err)

	seedCart(store, owner, 100, map[int64]int{1: 1})
	_, err = svc.CreateOrder(context.Background(), owner, 7, 3)
	require.NoError(t, err)

	summaries, err := svc.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	byCode := map[string]domain.Status{}
	for _, s := range summaries {
		byCode[s.Code] = s.Status
	}
	assert.Equal(t, domain.StatusInProgress, byCode[first.Code])
	assert.Equal(t, domain.StatusNew, byCode["ORD-"+testDay+"-0002"])
}

package cart

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

// memStore keeps carts in memory with the same rules as CartRepository.
type memStore struct {
	mu       sync.Mutex
	prices   map[int64]decimal.Decimal
	open     map[int64]int64
	items    map[int64]*domain.CartItem
	statuses map[int64]domain.CartStatus
	nextID   int64

	// checkoutBeforeWrite completes the cart right before the next item
	// write, the way a concurrent checkout would.
	checkoutBeforeWrite bool
}

func newMemStore(prices map[int64]string) *memStore {
	s := &memStore{
		prices:   map[int64]decimal.Decimal{},
		open:     map[int64]int64{},
		items:    map[int64]*domain.CartItem{},
		statuses: map[int64]domain.CartStatus{},
	}
	for id, p := range prices {
		s.prices[id] = decimal.RequireFromString(p)
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) FindOpenCart(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.open[userID]; ok {
		return id, nil
	}
	return 0, ErrCartNotFound
}

func (s *memStore) GetOrCreateOpenCart(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.open[userID]; ok {
		return id, nil
	}
	id := s.id()
	s.open[userID] = id
	s.statuses[id] = domain.CartStatusOpen
	return id, nil
}

// writable mirrors the row lock check: only open carts take item writes.
func (s *memStore) writable(cartID int64) error {
	if s.checkoutBeforeWrite {
		s.checkoutBeforeWrite = false
		s.statuses[cartID] = domain.CartStatusCompleted
		for user, id := range s.open {
			if id == cartID {
				delete(s.open, user)
			}
		}
	}
	if s.statuses[cartID] != domain.CartStatusOpen {
		return ErrCartNotFound
	}
	return nil
}

func (s *memStore) AddItem(_ context.Context, cartID, bookID int64, quantity int) (domain.CartItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validQuantity(quantity); err != nil {
		return domain.CartItem{}, false, err
	}
	if err := s.writable(cartID); err != nil {
		return domain.CartItem{}, false, err
	}
	for _, item := range s.items {
		if item.CartID == cartID && item.BookID == bookID {
			item.Quantity += quantity
			return *item, false, nil
		}
	}
	price, ok := s.prices[bookID]
	if !ok {
		return domain.CartItem{}, false, ErrBookNotFound
	}
	item := &domain.CartItem{ID: s.id(), CartID: cartID, BookID: bookID, Quantity: quantity, UnitPrice: price}
	s.items[item.ID] = item
	return *item, true, nil
}

func (s *memStore) UpdateItemQuantity(_ context.Context, cartID, itemID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validQuantity(quantity); err != nil {
		return err
	}
	if err := s.writable(cartID); err != nil {
		return err
	}
	item, ok := s.items[itemID]
	if !ok || item.CartID != cartID {
		return ErrItemNotFound
	}
	item.Quantity = quantity
	return nil
}

func (s *memStore) RemoveItem(_ context.Context, cartID, itemID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(cartID); err != nil {
		return false, err
	}
	item, ok := s.items[itemID]
	if !ok || item.CartID != cartID {
		return false, ErrItemNotFound
	}
	delete(s.items, itemID)
	for _, other := range s.items {
		if other.CartID == cartID {
			return false, nil
		}
	}
	s.statuses[cartID] = domain.CartStatusCancelled
	for user, id := range s.open {
		if id == cartID {
			delete(s.open, user)
		}
	}
	return true, nil
}

func (s *memStore) ListItems(_ context.Context, userID int64) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := []domain.CartLine{}
	cartID, ok := s.open[userID]
	if !ok {
		return lines, nil
	}
	for _, item := range s.items {
		if item.CartID == cartID {
			lines = append(lines, domain.CartLine{CartItem: *item, Price: s.prices[item.BookID]})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

type cartClient struct {
	t       *testing.T
	mux     *http.ServeMux
	userID  int64
	handler *Handler
}

func newCartClient(t *testing.T, s Store, userID int64) *cartClient {
	h := NewHandler(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cart", h.HandleAdd)
	mux.HandleFunc("GET /cart", h.HandleList)
	mux.HandleFunc("PUT /cart/{itemId}", h.HandleUpdate)
	mux.HandleFunc("DELETE /cart/{itemId}", h.HandleRemove)
	return &cartClient{t: t, mux: mux, userID: userID, handler: h}
}

func (c *cartClient) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: c.userID, Role: "customer"}))
	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)
	return rec
}

func (c *cartClient) lines() []domain.CartLine {
	c.t.Helper()
	rec := c.do(http.MethodGet, "/cart", "")
	require.Equal(c.t, http.StatusOK, rec.Code)
	var lines []domain.CartLine
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &lines))
	return lines
}

func TestHandler_AddIncrementsInsteadOfDuplicating(t *testing.T) {
	client := newCartClient(t, newMemStore(map[int64]string{7: "12.50"}), 1)

	rec := client.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = client.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	lines := client.lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(7), lines[0].BookID)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestHandler_SequenceNetEffect(t *testing.T) {
	client := newCartClient(t, newMemStore(map[int64]string{1: "59.90", 2: "45.00", 3: "39.50"}), 1)

	add := func(body string) domain.CartItem {
		rec := client.do(http.MethodPost, "/cart", body)
		require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())
		var item domain.CartItem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
		return item
	}

	first := add(`{"bookId": 1, "quantity": 1}`)
	second := add(`{"bookId": 2, "quantity": 4}`)
	third := add(`{"bookId": 3, "quantity": 1}`)
	add(`{"bookId": 1, "quantity": 2}`)

	rec := client.do(http.MethodPut, "/cart/"+itoa(second.ID), `{"quantity": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = client.do(http.MethodDelete, "/cart/"+itoa(third.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cartCancelled": false}`, rec.Body.String())

	got := map[int64]int{}
	for _, line := range client.lines() {
		got[line.BookID] = line.Quantity
	}
	assert.Equal(t, map[int64]int{1: 3, 2: 1}, got)
	assert.NotZero(t, first.ID)
}

func TestHandler_RemovingLastItemCancelsCart(t *testing.T) {
	store := newMemStore(map[int64]string{7: "12.50"})
	client := newCartClient(t, store, 1)

	rec := client.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = client.do(http.MethodDelete, "/cart/"+itoa(item.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cartCancelled": true}`, rec.Body.String())
	assert.Equal(t, domain.CartStatusCancelled, store.statuses[item.CartID])
	assert.Empty(t, client.lines())
}

func TestHandler_Errors(t *testing.T) {
	store := newMemStore(map[int64]string{7: "12.50"})
	owner := newCartClient(t, store, 1)
	other := newCartClient(t, store, 2)

	rec := owner.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	other.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 1}`)

	tests := []struct {
		name    string
		client  *cartClient
		method  string
		path    string
		body    string
		status  int
		message string
	}{
		{"malformed body", owner, http.MethodPost, "/cart", `{`, http.StatusBadRequest, "invalid request body"},
		{"missing book", owner, http.MethodPost, "/cart", `{"quantity": 1}`, http.StatusBadRequest, "bookId is required"},
		{"zero quantity", owner, http.MethodPost, "/cart", `{"bookId": 7, "quantity": 0}`, http.StatusBadRequest, "quantity must be at least 1"},
		{"quantity above limit", owner, http.MethodPost, "/cart", `{"bookId": 7, "quantity": 1000}`, http.StatusBadRequest, "quantity must be at most 999"},
		{"quantity beyond int32", owner, http.MethodPost, "/cart", `{"bookId": 7, "quantity": 4294967296}`, http.StatusBadRequest, "quantity must be at most 999"},
		{"unknown book", owner, http.MethodPost, "/cart", `{"bookId": 99, "quantity": 1}`, http.StatusNotFound, "book not found"},
		{"update foreign item", other, http.MethodPut, "/cart/" + itoa(item.ID), `{"quantity": 3}`, http.StatusNotFound, "cart item not found"},
		{"update invalid quantity", owner, http.MethodPut, "/cart/" + itoa(item.ID), `{"quantity": 0}`, http.StatusBadRequest, "quantity must be at least 1"},
		{"update above limit", owner, http.MethodPut, "/cart/" + itoa(item.ID), `{"quantity": 5000}`, http.StatusBadRequest, "quantity must be at most 999"},
		{"remove foreign item", other, http.MethodDelete, "/cart/" + itoa(item.ID), "", http.StatusNotFound, "cart item not found"},
		{"bad item id", owner, http.MethodDelete, "/cart/abc", "", http.StatusBadRequest, "invalid item id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.client.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
		})
	}

	t.Run("user without open cart", func(t *testing.T) {
		stranger := newCartClient(t, store, 3)
		rec := stranger.do(http.MethodDelete, "/cart/"+itoa(item.ID), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_AddAfterCartClosedByCheckout(t *testing.T) {
	store := newMemStore(map[int64]string{1: "59.90", 7: "12.50"})
	client := newCartClient(t, store, 1)

	rec := client.do(http.MethodPost, "/cart", `{"bookId": 1, "quantity": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var first domain.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	store.checkoutBeforeWrite = true
	rec = client.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added domain.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))

	assert.NotEqual(t, first.CartID, added.CartID, "the book must not land in the completed cart")
	assert.Equal(t, domain.CartStatusCompleted, store.statuses[first.CartID])

	lines := client.lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(7), lines[0].BookID)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestHandler_UpdateAfterCartClosedByCheckout(t *testing.T) {
	store := newMemStore(map[int64]string{7: "12.50"})
	client := newCartClient(t, store, 1)

	rec := client.do(http.MethodPost, "/cart", `{"bookId": 7, "quantity": 1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	store.checkoutBeforeWrite = true
	rec = client.do(http.MethodPut, "/cart/"+itoa(item.ID), `{"quantity": 4}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "cart item not found"}`, rec.Body.String())
	assert.Equal(t, 1, store.items[item.ID].Quantity)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

package exec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"updown-hedge-bot/internal/clob/rest"

	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type mockRest struct {
	mu         sync.Mutex
	calls      int
	cancels    int
	orderID    string
	cancelErr  error
	placeFails int
}

func (m *mockRest) PlaceOrder(ctx context.Context, req rest.OrderRequest) (rest.OrderResponse, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.placeFails > 0 {
		m.placeFails--
		return rest.OrderResponse{}, errors.New("transient failure")
	}
	return rest.OrderResponse{Success: true, OrderID: m.orderID}, nil
}

func (m *mockRest) GetOrder(ctx context.Context, orderID string) (rest.OrderStatus, error) {
	_ = ctx
	return rest.OrderStatus{ID: orderID, Status: "LIVE", SizeMatched: "0"}, nil
}

func (m *mockRest) CancelOrder(ctx context.Context, orderID string) error {
	_ = ctx
	_ = orderID
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return m.cancelErr
}

func TestExecutorIdempotentPlacement(t *testing.T) {
	store := newMemoryStore()
	mock := &mockRest{orderID: "oid-1"}
	logger := zap.NewNop()
	executor := New(mock, store, logger)

	ctx := context.Background()
	req := rest.OrderRequest{ClientID: "abc", TokenID: "111", Side: rest.SideBuy, Price: 0.45, Size: 5}

	id1, err := executor.PlaceOrder(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := executor.PlaceOrder(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same order id, got %s and %s", id1, id2)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 rest call, got %d", mock.calls)
	}

	mock2 := &mockRest{orderID: "oid-2"}
	executor2 := New(mock2, store, logger)
	id3, err := executor2.PlaceOrder(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id3 != id1 {
		t.Fatalf("expected stored order id %s, got %s", id1, id3)
	}
	if mock2.calls != 0 {
		t.Fatalf("expected no rest calls on restart, got %d", mock2.calls)
	}
}

func TestExecutorRetriesPlacement(t *testing.T) {
	mock := &mockRest{orderID: "oid-1", placeFails: 2}
	executor := New(mock, newMemoryStore(), zap.NewNop())

	id, err := executor.PlaceOrder(context.Background(), rest.OrderRequest{ClientID: "r1", TokenID: "111"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "oid-1" {
		t.Fatalf("unexpected order id: %s", id)
	}
	if mock.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", mock.calls)
	}
}

func TestExecutorCancelTreatsMissingAsDone(t *testing.T) {
	mock := &mockRest{cancelErr: rest.ErrOrderNotFound}
	executor := New(mock, newMemoryStore(), zap.NewNop())

	if err := executor.CancelOrder(context.Background(), "gone"); err != nil {
		t.Fatalf("missing order must cancel cleanly, got %v", err)
	}
	if mock.cancels != 1 {
		t.Fatalf("expected single cancel attempt, got %d", mock.cancels)
	}
}

package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"updown-hedge-bot/internal/clob/rest"
	"updown-hedge-bot/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RestClient interface {
	PlaceOrder(ctx context.Context, req rest.OrderRequest) (rest.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (rest.OrderStatus, error)
}

// Executor places and cancels orders with retry. Client order ids make
// retried placements idempotent: the id->exchange-id mapping is cached
// in memory and in the kv store, so a crash between send and ack does
// not double-place.
type Executor struct {
	rest  RestClient
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(restClient RestClient, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		rest:  restClient,
		store: store,
		log:   log,
		cache: make(map[string]string),
	}
}

// NewClientID returns a fresh client order id.
func NewClientID() string {
	return uuid.NewString()
}

func (e *Executor) PlaceOrder(ctx context.Context, req rest.OrderRequest) (string, error) {
	if req.ClientID == "" {
		req.ClientID = NewClientID()
	}
	cacheKey := "cloid:" + req.ClientID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			return oid, nil
		}
	}
	orderID, err := e.placeWithRetry(ctx, req)
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = orderID
	e.mu.Unlock()
	return orderID, nil
}

// CancelOrder retries transient failures and treats an already-gone
// order as cancelled.
func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	err := e.retry(ctx, func() error {
		err := e.rest.CancelOrder(ctx, orderID)
		if errors.Is(err, rest.ErrOrderNotFound) {
			return nil
		}
		return err
	})
	return err
}

// OrderStatus reads the order back from the exchange. No retry: callers
// consult it on timers and can simply ask again next tick.
func (e *Executor) OrderStatus(ctx context.Context, orderID string) (rest.OrderStatus, error) {
	return e.rest.GetOrder(ctx, orderID)
}

func (e *Executor) placeWithRetry(ctx context.Context, req rest.OrderRequest) (string, error) {
	var orderID string
	err := e.retry(ctx, func() error {
		resp, err := e.rest.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		orderID = resp.OrderID
		return nil
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("empty order id")
	}
	return orderID, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err != nil {
			if attempt == 4 {
				return fmt.Errorf("retry failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return nil
}

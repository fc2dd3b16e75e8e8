package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/service/commerce"
)

const snapshotConcurrency = 4

type API interface {
	GetCart(ctx context.Context, cartID string) (commerce.Cart, error)
	AddCartItem(ctx context.Context, cartID string, item commerce.AddCartItemRequest) (commerce.CartItem, error)
	UpdateCartItem(ctx context.Context, cartID string, itemID int64, quantity int) (commerce.CartItem, error)
	RemoveCartItem(ctx context.Context, cartID string, itemID int64) error
	GetProduct(ctx context.Context, productID int64) (commerce.Product, error)
	GetVariant(ctx context.Context, productID int64, variantID int64) (commerce.Variant, error)
}

type AddItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Quantity  int    `json:"quantity"`
}

type Service struct {
	api    API
	logger logger.Logger
}

func NewService(api API, l logger.Logger) *Service {
	return &Service{api: api, logger: l}
}

// Load fetches the cart and refreshes every line snapshot from the catalog
func (s *Service) Load(ctx context.Context, cartID string) (models.PricedCart, error) {
	lines, err := s.lines(ctx, cartID)
	if err != nil {
		return models.PricedCart{}, err
	}
	return Price(lines), nil
}

func (s *Service) AddItem(ctx context.Context, cartID string, r AddItemRequest) (models.PricedCart, error) {
	lines, err := s.lines(ctx, cartID)
	if err != nil {
		return models.PricedCart{}, err
	}

	line, err := s.snapshot(ctx, newSnapshotCache(), commerce.CartItem{ProductID: r.ProductID, VariantID: r.VariantID})
	if err != nil {
		return models.PricedCart{}, err
	}
	if !line.IsAvailable {
		return models.PricedCart{}, apperrors.InsufficientStock(r.Quantity, 0)
	}

	// Quantity already in the cart counts against the same stock
	total := r.Quantity
	if r.Quantity >= 1 {
		for _, l := range lines {
			if l.ProductID == r.ProductID && sameVariant(l.VariantID, r.VariantID) {
				total += l.Quantity
			}
		}
	}
	if err := ValidateQuantity(line, total); err != nil {
		var stockErr *apperrors.StockError
		if errors.As(err, &stockErr) {
			stockErr.Requested = r.Quantity
		}
		return models.PricedCart{}, err
	}

	_, err = s.api.AddCartItem(ctx, cartID, commerce.AddCartItemRequest{
		ProductID: r.ProductID,
		VariantID: r.VariantID,
		Quantity:  r.Quantity,
	})
	if err != nil {
		return models.PricedCart{}, serverRejected(err, r.Quantity, line.StockQuantity, apperrors.ErrProductNotFound)
	}

	return s.Load(ctx, cartID)
}

// UpdateQuantity validates locally, then lets the server decide
// The provisional quantity is never kept: the returned cart is what the server has
func (s *Service) UpdateQuantity(ctx context.Context, cartID string, itemID int64, quantity int) (models.PricedCart, error) {
	lines, err := s.lines(ctx, cartID)
	if err != nil {
		return models.PricedCart{}, err
	}

	idx := -1
	for i, l := range lines {
		if l.ItemID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return models.PricedCart{}, apperrors.ErrCartItemNotFound
	}
	line := lines[idx]

	if err := ValidateQuantity(line, quantity); err != nil {
		return models.PricedCart{}, err
	}

	if _, err := s.api.UpdateCartItem(ctx, cartID, itemID, quantity); err != nil {
		s.logger.Info("Quantity rejected by server", "cart_id", cartID, "item_id", itemID, "quantity", quantity, "error", err)
		return models.PricedCart{}, serverRejected(err, quantity, line.StockQuantity, apperrors.ErrCartItemNotFound)
	}

	return s.Load(ctx, cartID)
}

func (s *Service) RemoveItem(ctx context.Context, cartID string, itemID int64) (models.PricedCart, error) {
	err := s.api.RemoveCartItem(ctx, cartID, itemID)
	switch {
	case err == nil:
	case commerce.IsKind(err, commerce.KindNotFound):
		return models.PricedCart{}, apperrors.ErrCartItemNotFound
	default:
		return models.PricedCart{}, err
	}

	return s.Load(ctx, cartID)
}

func (s *Service) lines(ctx context.Context, cartID string) ([]models.CartLine, error) {
	cart, err := s.api.GetCart(ctx, cartID)
	switch {
	case err == nil:
	case commerce.IsKind(err, commerce.KindNotFound):
		// Created on the server with the first item
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	lines := make([]models.CartLine, len(cart.Items))
	cache := newSnapshotCache()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, item := range cart.Items {
		g.Go(func() error {
			line, err := s.snapshot(gctx, cache, item)
			if errors.Is(err, apperrors.ErrProductNotFound) {
				// Removed from the catalog: keep the line, it blocks checkout
				line = models.CartLine{ProductID: item.ProductID, VariantID: item.VariantID, Name: "unavailable"}
				err = nil
			}
			line.ItemID = item.ID
			line.Quantity = item.Quantity
			lines[i] = line
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to refresh cart snapshot: %w", err)
	}

	return lines, nil
}

// Snapshot of catalog fields for the item; variant overrides product
func (s *Service) snapshot(ctx context.Context, cache *snapshotCache, item commerce.CartItem) (models.CartLine, error) {
	p, err := cache.product(ctx, s.api, item.ProductID)
	if err != nil {
		return models.CartLine{}, err
	}

	line := models.CartLine{
		ProductID:        p.ID,
		VariantID:        item.VariantID,
		Name:             p.Name,
		UnitPrice:        p.Price,
		StockQuantity:    p.StockQuantity,
		IsAvailable:      p.IsAvailable,
		RequiresShipping: p.RequiresShipping,
		FreeShipping:     p.FreeShipping,
		ShippingFee:      p.ShippingFee,
	}
	if item.VariantID == nil {
		return line, nil
	}

	v, err := s.api.GetVariant(ctx, item.ProductID, *item.VariantID)
	switch {
	case err == nil:
	case commerce.IsKind(err, commerce.KindNotFound):
		return line, apperrors.ErrProductNotFound
	default:
		return line, err
	}

	line.Size = v.Size
	line.Color = v.Color
	line.StockQuantity = v.StockQuantity
	line.IsAvailable = p.IsAvailable && v.IsAvailable
	if v.Price != nil {
		line.UnitPrice = *v.Price
	}
	return line, nil
}

// Map server rejection of a quantity to the local error taxonomy
func serverRejected(err error, requested int, knownStock int, notFound error) error {
	switch {
	case errors.Is(err, apperrors.ErrInsufficientStock):
		return apperrors.InsufficientStock(requested, max(knownStock, 0))
	case commerce.IsKind(err, commerce.KindNotFound):
		return notFound
	default:
		return err
	}
}

func sameVariant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Product fetched once per load even if several lines share it
type snapshotCache struct {
	mu       sync.Mutex
	products map[int64]*productCall
}

type productCall struct {
	once    sync.Once
	product commerce.Product
	err     error
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{products: make(map[int64]*productCall)}
}

func (c *snapshotCache) product(ctx context.Context, api API, id int64) (commerce.Product, error) {
	c.mu.Lock()
	call, ok := c.products[id]
	if !ok {
		call = &productCall{}
		c.products[id] = call
	}
	c.mu.Unlock()

	call.once.Do(func() {
		call.product, call.err = api.GetProduct(ctx, id)
		if commerce.IsKind(call.err, commerce.KindNotFound) {
			call.err = apperrors.ErrProductNotFound
		}
	})
	return call.product, call.err
}

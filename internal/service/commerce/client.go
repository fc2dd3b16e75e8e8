package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Client is typed access to commerce API resources
type Client struct {
	gw *Gateway
}

func NewClient(gw *Gateway) *Client {
	return &Client{gw: gw}
}

func (c *Client) GetCart(ctx context.Context, cartID string) (Cart, error) {
	var cart Cart
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "carts/" + url.PathEscape(cartID)}, &cart)
	return cart, err
}

func (c *Client) AddCartItem(ctx context.Context, cartID string, item AddCartItemRequest) (CartItem, error) {
	var out CartItem
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "carts/" + url.PathEscape(cartID) + "/items", Body: item}, &out)
	return out, err
}

func (c *Client) UpdateCartItem(ctx context.Context, cartID string, itemID int64, quantity int) (CartItem, error) {
	var out CartItem
	err := c.call(ctx, Request{
		Method: http.MethodPatch,
		Path:   cartItemPath(cartID, itemID),
		Body:   map[string]int{"quantity": quantity},
	}, &out)
	return out, err
}

func (c *Client) RemoveCartItem(ctx context.Context, cartID string, itemID int64) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: cartItemPath(cartID, itemID)}, nil)
}

func (c *Client) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "products/" + strconv.FormatInt(productID, 10)}, &p)
	return p, err
}

func (c *Client) GetVariant(ctx context.Context, productID int64, variantID int64) (Variant, error) {
	var v Variant
	path := fmt.Sprintf("products/%d/variants/%d", productID, variantID)
	err := c.call(ctx, Request{Method: http.MethodGet, Path: path}, &v)
	return v, err
}

func (c *Client) CreateOrder(ctx context.Context, r CreateOrderRequest) (Order, error) {
	var o Order
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "orders", Body: r}, &o)
	return o, err
}

func (c *Client) GetOrder(ctx context.Context, number string) (Order, error) {
	var o Order
	err := c.call(ctx, Request{Method: http.MethodGet, Path: orderPath(number)}, &o)
	return o, err
}

func (c *Client) PayOrder(ctx context.Context, number string) (PaymentLink, error) {
	var l PaymentLink
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number) + "/pay"}, &l)
	return l, err
}

func (c *Client) VerifyPayment(ctx context.Context, number string, r VerifyPaymentRequest) (Order, error) {
	var o Order
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number) + "/verify-payment", Body: r}, &o)
	return o, err
}

func (c *Client) CancelOrder(ctx context.Context, number string) (Order, error) {
	var o Order
	err := c.call(ctx, Request{Method: http.MethodPost, Path: orderPath(number) + "/cancel"}, &o)
	return o, err
}

// Send request and decode body into out unless out is nil or body is empty
func (c *Client) call(ctx context.Context, r Request, out any) error {
	resp, err := c.gw.Send(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func cartItemPath(cartID string, itemID int64) string {
	return "carts/" + url.PathEscape(cartID) + "/items/" + strconv.FormatInt(itemID, 10)
}

func orderPath(number string) string {
	return "orders/" + url.PathEscape(number)
}

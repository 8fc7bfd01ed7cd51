// Package apiclient talks to the rate-card HTTP API.
package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"ratecard-service/internal/cart"
	"ratecard-service/internal/editor"
	"ratecard-service/internal/ratecard"
)

var (
	_ editor.Server = (*Client)(nil)
	_ cart.Booker   = (*Client)(nil)
)

// Error is a non-2xx API response.
type Error struct {
	Status        int
	Message       string
	BookingsCount int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed (%d %s)", e.Status, http.StatusText(e.Status))
}

// BlockingBookings is the number of bookings that prevented a delete.
func (e *Error) BlockingBookings() int { return e.BookingsCount }

type errorBody struct {
	Error         string `json:"error"`
	BookingsCount int    `json:"bookingsCount"`
}

type Client struct {
	http *resty.Client
}

// New returns a client for baseURL. token, when set, is sent as a bearer
// token for operator routes.
func New(baseURL, token string) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		r.SetAuthToken(token)
	}
	return &Client{http: r}
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, out any) error {
	var eb errorBody
	req := c.http.R().SetContext(ctx).SetError(&eb)
	if params != nil {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &Error{Status: resp.StatusCode(), Message: eb.Error, BookingsCount: eb.BookingsCount}
	}
	return nil
}

func (c *Client) GetRateCard(ctx context.Context, id string) (*ratecard.RateCard, error) {
	var out ratecard.RateCard
	err := c.do(ctx, http.MethodGet, "/api/rate-cards/{id}", map[string]string{"id": id}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTable(ctx context.Context, tableID string) (*ratecard.Table, error) {
	var out ratecard.Table
	err := c.do(ctx, http.MethodGet, "/api/tables/{tableId}", map[string]string{"tableId": tableID}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type cellsBody struct {
	Cells []ratecard.Cell `json:"cells"`
}

// UpdateCells changes only the given cells (PATCH).
func (c *Client) UpdateCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return c.writeCells(ctx, http.MethodPatch, tableID, rowID, cells)
}

// ReplaceCells overwrites the whole row (PUT).
func (c *Client) ReplaceCells(ctx context.Context, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	return c.writeCells(ctx, http.MethodPut, tableID, rowID, cells)
}

func (c *Client) writeCells(ctx context.Context, method, tableID, rowID string, cells []ratecard.Cell) (*ratecard.Row, error) {
	var out ratecard.Row
	err := c.do(ctx, method, "/api/tables/{tableId}/rows/{rowId}/cells",
		map[string]string{"tableId": tableID, "rowId": rowID}, cellsBody{Cells: cells}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateRow(ctx context.Context, tableID string, row ratecard.Row) (*ratecard.Row, error) {
	body := struct {
		IsBookable bool            `json:"isBookable"`
		Cells      []ratecard.Cell `json:"cells,omitempty"`
	}{row.IsBookable, row.Cells}
	var out ratecard.Row
	err := c.do(ctx, http.MethodPost, "/api/tables/{tableId}/rows", map[string]string{"tableId": tableID}, body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateColumn(ctx context.Context, tableID string, col ratecard.Column) (*ratecard.Column, error) {
	body := struct {
		Name     string                 `json:"name"`
		DataType ratecard.DataType      `json:"dataType"`
		Config   *ratecard.ColumnConfig `json:"config,omitempty"`
	}{col.Name, col.DataType, col.Config}
	var out ratecard.Column
	err := c.do(ctx, http.MethodPost, "/api/tables/{tableId}/columns", map[string]string{"tableId": tableID}, body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRow(ctx context.Context, tableID, rowID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tables/{tableId}/rows/{rowId}",
		map[string]string{"tableId": tableID, "rowId": rowID}, nil, nil)
}

func (c *Client) DeleteColumn(ctx context.Context, tableID, columnID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tables/{tableId}/columns/{columnId}",
		map[string]string{"tableId": tableID, "columnId": columnID}, nil, nil)
}

// CreateBooking submits one booking for b.RowID on b.RateCardID.
func (c *Client) CreateBooking(ctx context.Context, b ratecard.Booking) (*ratecard.Booking, error) {
	body := struct {
		RowID       string   `json:"rowId"`
		RateCardID  string   `json:"rateCardId"`
		ColumnIDs   []string `json:"columnIds,omitempty"`
		ClientName  string   `json:"clientName"`
		ClientEmail string   `json:"clientEmail"`
		ClientPhone string   `json:"clientPhone,omitempty"`
		Quantity    int      `json:"quantity"`
		StartDate   string   `json:"startDate,omitempty"`
		EndDate     string   `json:"endDate,omitempty"`
		Notes       string   `json:"notes,omitempty"`
	}{b.RowID, b.RateCardID, b.ColumnIDs, b.ClientName, b.ClientEmail, b.ClientPhone, b.Quantity, b.StartDate, b.EndDate, b.Notes}
	var out ratecard.Booking
	err := c.do(ctx, http.MethodPost, "/api/rate-cards/{id}/bookings", map[string]string{"id": b.RateCardID}, body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBookings(ctx context.Context, rateCardID string) ([]ratecard.Booking, error) {
	var out struct {
		Bookings []ratecard.Booking `json:"bookings"`
	}
	err := c.do(ctx, http.MethodGet, "/api/rate-cards/{id}/bookings", map[string]string{"id": rateCardID}, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

func (c *Client) CancelBooking(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bookings/{id}", map[string]string{"id": id}, nil, nil)
}

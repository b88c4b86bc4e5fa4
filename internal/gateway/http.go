package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway talks to a snap-style hosted checkout API: a JSON POST with
// the transaction details, authenticated with the server key as the basic
// auth user, answered with a token and a redirect URL.
type HTTPGateway struct {
	BaseURL   string
	ServerKey string
	Client    *http.Client
}

// NewHTTPGateway returns a gateway with its own client bounded by timeout.
func NewHTTPGateway(baseURL, serverKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ServerKey: serverKey,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Name() string { return "http" }

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []snapItem `json:"item_details"`
	Expiry      *struct {
		Unit     string `json:"unit"`
		Duration int64  `json:"duration"`
	} `json:"expiry,omitempty"`
}

type snapItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func (g *HTTPGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	var body snapRequest
	body.TransactionDetails.OrderID = req.ExternalRef
	body.TransactionDetails.GrossAmount = req.Amount.Round(0).IntPart()
	body.ItemDetails = []snapItem{{
		ID:       fmt.Sprintf("ORDER-%d", req.OrderID),
		Price:    req.UnitPrice.Round(0).IntPart(),
		Quantity: req.Quantity,
		Name:     req.ItemName,
	}}
	if !req.ExpiresAt.IsZero() {
		if mins := int64(time.Until(req.ExpiresAt) / time.Minute); mins > 0 {
			body.Expiry = &struct {
				Unit     string `json:"unit"`
				Duration int64  `json:"duration"`
			}{Unit: "minutes", Duration: mins}
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Charge{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/snap/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return Charge{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(g.ServerKey, "")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return Charge{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Charge{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return Charge{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var out snapResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Charge{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Charge{}, fmt.Errorf("gateway rejected charge (status %d): %s", resp.StatusCode, strings.Join(out.ErrorMessages, "; "))
	}
	if out.Token == "" {
		return Charge{}, fmt.Errorf("gateway response without token")
	}
	return Charge{Reference: out.Token, RedirectURL: out.RedirectURL}, nil
}

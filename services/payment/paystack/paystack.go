// Package paystack is the Paystack payment gateway client.
package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/order"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "x-paystack-signature"

type (
	envelope struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	}

	initializeBody struct {
		Email       string                 `json:"email"`
		Amount      int64                  `json:"amount"`
		Reference   string                 `json:"reference"`
		CallbackURL string                 `json:"callback_url,omitempty"`
		Currency    string                 `json:"currency,omitempty"`
		Metadata    map[string]interface{} `json:"metadata,omitempty"`
	}

	initializeResult struct {
		envelope
		Data struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	verifyResult struct {
		envelope
		Data struct {
			ID        int64  `json:"id"`
			Status    string `json:"status"`
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
			Currency  string `json:"currency"`
			Channel   string `json:"channel"`
			PaidAt    string `json:"paid_at"`
		} `json:"data"`
	}
)

type Client struct {
	http   *resty.Client
	secret string
}

var _ order.Gateway = (*Client)(nil)

func NewClient(conf core.PaystackConfig) *Client {
	httpc := resty.New().
		SetBaseURL(strings.TrimSuffix(conf.BaseURL, "/")).
		SetTimeout(conf.Timeout).
		SetAuthToken(conf.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: httpc, secret: conf.SecretKey}
}

func (c *Client) Initialize(ctx context.Context, req order.InitializeRequest) (order.InitializeResponse, error) {
	var result initializeResult
	var failure envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(initializeBody{
			Email:       req.Email,
			Amount:      req.Amount,
			Reference:   req.Reference,
			CallbackURL: req.CallbackURL,
			Currency:    req.Currency,
			Metadata:    req.Metadata,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/transaction/initialize")
	if err != nil {
		return order.InitializeResponse{}, errors.Wrap(err, "initializing transaction")
	}
	if resp.IsError() || !result.Status {
		return order.InitializeResponse{}, apiError("initializing transaction", resp, failure, result.envelope)
	}
	return order.InitializeResponse{
		AuthorizationURL: result.Data.AuthorizationURL,
		AccessCode:       result.Data.AccessCode,
		Reference:        result.Data.Reference,
	}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (order.Transaction, error) {
	var result verifyResult
	var failure envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure).
		Get("/transaction/verify/" + url.PathEscape(reference))
	if err != nil {
		return order.Transaction{}, errors.Wrap(err, "verifying transaction")
	}
	if resp.IsError() || !result.Status {
		return order.Transaction{}, apiError("verifying transaction", resp, failure, result.envelope)
	}

	tx := order.Transaction{
		Status:    result.Data.Status,
		Reference: result.Data.Reference,
		Channel:   result.Data.Channel,
		GatewayID: result.Data.ID,
		Amount:    result.Data.Amount,
		Currency:  result.Data.Currency,
	}
	if result.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, result.Data.PaidAt); err == nil {
			tx.PaidAt = paidAt.UTC()
		}
	}
	return tx, nil
}

// VerifySignature checks the hex HMAC-SHA512 of the body keyed with the secret key.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if signature == "" || c.secret == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(Sign(c.secret, body), expected)
}

// Sign returns the raw HMAC-SHA512 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

func apiError(action string, resp *resty.Response, envs ...envelope) error {
	msg := http.StatusText(resp.StatusCode())
	for _, env := range envs {
		if env.Message != "" {
			msg = env.Message
			break
		}
	}
	return errors.Errorf("%s: %s (status %d)", action, msg, resp.StatusCode())
}

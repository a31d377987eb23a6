package order

import (
	"context"
	"time"
)

// Gateway transaction statuses
const (
	TxSuccess   = "success"
	TxFailed    = "failed"
	TxAbandoned = "abandoned"

	EventChargeSuccess = "charge.success"
)

type (
	InitializeRequest struct {
		Email       string
		Amount      int64 // minor units
		Reference   string
		CallbackURL string
		Currency    string
		Metadata    map[string]interface{}
	}

	InitializeResponse struct {
		AuthorizationURL string
		AccessCode       string
		Reference        string
	}

	Transaction struct {
		Status    string
		Reference string
		Channel   string
		GatewayID int64
		Amount    int64 // minor units
		Currency  string
		PaidAt    time.Time
	}

	WebhookEvent struct {
		Event string `json:"event"`
		Data  struct {
			ID        int64  `json:"id"`
			Reference string `json:"reference"`
			Channel   string `json:"channel"`
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
			Currency  string `json:"currency"`
		} `json:"data"`
	}

	// Gateway is a Paystack-like payment gateway.
	Gateway interface {
		Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error)
		Verify(ctx context.Context, reference string) (Transaction, error)
		// VerifySignature checks the webhook body signature.
		VerifySignature(body []byte, signature string) bool
	}

	LedgerEntry struct {
		OrderNumber string
		Kind        string // initialize, verify, webhook
		Status      string
		Payload     interface{}
	}

	// Ledger keeps a trail of every gateway exchange.
	Ledger interface {
		Record(ctx context.Context, entry LedgerEntry) error
	}

	// Deduper short-circuits repeated webhook deliveries.
	Deduper interface {
		// FirstSeen records key and tells whether it was new.
		FirstSeen(ctx context.Context, key string) (bool, error)
		Forget(ctx context.Context, key string) error
	}
)

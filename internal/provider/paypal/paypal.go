// internal/provider/paypal/paypal.go
package paypal

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/provider"

	paypalsdk "github.com/plutov/paypal/v4"
)

// ErrReversalUnsupported: PayPal payouts cannot be clawed back through the
// API; reversals on this rail are an operator-handled dispute flow.
var ErrReversalUnsupported = errors.New("paypal: transfer reversal not supported")

// PaypalProvider is the alternate payout rail for workers without a
// processor sub-account. Transfers go out as single-item payout batches
// addressed to the worker's PayPal email.
type PaypalProvider struct {
	client *paypalsdk.Client
}

func NewPaypalProvider(clientID, clientSecret string, live bool) (*PaypalProvider, error) {
	base := paypalsdk.APIBaseSandBox
	if live {
		base = paypalsdk.APIBaseLive
	}
	c, err := paypalsdk.NewClient(clientID, clientSecret, base)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("paypal auth: %w", err)
	}
	return &PaypalProvider{client: c}, nil
}

func (p *PaypalProvider) Name() string {
	return "paypal"
}

func centsToValue(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func (p *PaypalProvider) Charge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	order, err := p.client.CreateOrder(ctx, paypalsdk.OrderIntentCapture, []paypalsdk.PurchaseUnitRequest{
		{
			ReferenceID: req.Reference,
			Amount: &paypalsdk.PurchaseUnitAmount{
				Currency: req.Currency,
				Value:    centsToValue(req.Amount),
			},
		},
	}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrChargeFailed, err)
	}
	return &provider.ChargeResult{ChargeID: order.ID, Status: string(order.Status)}, nil
}

func (p *PaypalProvider) Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	// SenderItemID is PayPal's dedupe handle: a re-sent payout with the same
	// item id is not paid twice.
	res, err := p.client.CreateSinglePayout(ctx, paypalsdk.Payout{
		SenderBatchHeader: &paypalsdk.SenderBatchHeader{
			SenderBatchID: req.IdempotencyKey,
			EmailSubject:  "You have a payout",
		},
		Items: []paypalsdk.PayoutItem{
			{
				RecipientType: "EMAIL",
				Receiver:      req.DestinationID,
				Amount: &paypalsdk.AmountPayout{
					Currency: req.Currency,
					Value:    centsToValue(req.Amount),
				},
				Note:         req.Reference,
				SenderItemID: req.IdempotencyKey,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransferFailed, err)
	}
	return &provider.TransferResult{TransferID: res.BatchHeader.PayoutBatchID}, nil
}

func (p *PaypalProvider) ReverseTransfer(ctx context.Context, req provider.ReversalRequest) (*provider.ReversalResult, error) {
	return nil, ErrReversalUnsupported
}

// CreateSubAccount registers the worker's PayPal email as a manual payout
// destination; there is no onboarding call to make.
func (p *PaypalProvider) CreateSubAccount(ctx context.Context, req provider.SubAccountRequest) (*provider.SubAccount, error) {
	if req.Email == "" {
		return nil, errors.New("paypal: receiver email required")
	}
	return &provider.SubAccount{AccountID: req.Email, PayoutsEnabled: true, Manual: true}, nil
}

// GetSubAccount reports the email rail as always deliverable; there is no
// account state at the processor to consult.
func (p *PaypalProvider) GetSubAccount(ctx context.Context, accountID string) (*provider.SubAccount, error) {
	return &provider.SubAccount{AccountID: accountID, PayoutsEnabled: true, Manual: true}, nil
}

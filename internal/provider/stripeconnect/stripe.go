// internal/provider/stripeconnect/stripe.go
package stripeconnect

import (
	"context"
	"fmt"

	"settlement-service/internal/provider"
)

type StripeProvider struct {
	client *StripeClient
}

func NewStripeProvider(client *StripeClient) *StripeProvider {
	return &StripeProvider{client: client}
}

func (s *StripeProvider) Name() string {
	return "stripe"
}

func (s *StripeProvider) Charge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	res, err := s.client.CreatePaymentIntent(ctx, req.IdempotencyKey, req.CustomerID, req.Amount, req.Currency, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrChargeFailed, err)
	}
	return &provider.ChargeResult{ChargeID: res.ID, Status: res.Status}, nil
}

func (s *StripeProvider) Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	res, err := s.client.CreateTransfer(ctx, req.IdempotencyKey, req.DestinationID, req.Amount, req.Currency, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrTransferFailed, err)
	}
	return &provider.TransferResult{TransferID: res.ID}, nil
}

func (s *StripeProvider) ReverseTransfer(ctx context.Context, req provider.ReversalRequest) (*provider.ReversalResult, error) {
	res, err := s.client.CreateTransferReversal(ctx, req.IdempotencyKey, req.TransferID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrReversalFailed, err)
	}
	return &provider.ReversalResult{ReversalID: res.ID}, nil
}

func (s *StripeProvider) CreateSubAccount(ctx context.Context, req provider.SubAccountRequest) (*provider.SubAccount, error) {
	res, err := s.client.CreateExpressAccount(ctx, req.Email, req.Country, req.WorkerID)
	if err != nil {
		return nil, err
	}
	return &provider.SubAccount{AccountID: res.ID, PayoutsEnabled: res.PayoutsEnabled}, nil
}

func (s *StripeProvider) GetSubAccount(ctx context.Context, accountID string) (*provider.SubAccount, error) {
	res, err := s.client.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &provider.SubAccount{AccountID: res.ID, PayoutsEnabled: res.PayoutsEnabled}, nil
}

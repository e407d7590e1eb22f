package domain

import (
	"errors"
	"testing"
)

func TestComputePricingCents(t *testing.T) {
	tests := []struct {
		name string
		base int64
		want Pricing
	}{
		{
			name: "hundred dollars",
			base: 10000,
			want: Pricing{
				Base:             10000,
				BuyerFee:         250,
				SellerCommission: 1250,
				TotalCharged:     10250,
				WorkerNet:        8750,
				PlatformTotal:    1500,
			},
		},
		{
			name: "one dollar",
			base: 100,
			want: Pricing{
				Base:             100,
				BuyerFee:         2, // 2.5 rounds to even
				SellerCommission: 12,
				TotalCharged:     102,
				WorkerNet:        88,
				PlatformTotal:    14,
			},
		},
		{
			name: "odd cents",
			base: 333,
			want: Pricing{
				Base:             333,
				BuyerFee:         8, // 8.325
				SellerCommission: 42, // 41.625
				TotalCharged:     341,
				WorkerNet:        291,
				PlatformTotal:    50,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputePricingCents(tt.base)
			if err != nil {
				t.Fatalf("ComputePricingCents(%d): %v", tt.base, err)
			}
			if *got != tt.want {
				t.Errorf("ComputePricingCents(%d) = %+v, want %+v", tt.base, *got, tt.want)
			}
		})
	}
}

func TestComputePricingConservation(t *testing.T) {
	// Every cent charged ends up with exactly one party.
	for base := int64(1); base <= 100000; base += 37 {
		p, err := ComputePricingCents(base)
		if err != nil {
			t.Fatalf("base %d: %v", base, err)
		}
		if p.TotalCharged != p.WorkerNet+p.PlatformTotal {
			t.Fatalf("base %d: charged %d != worker %d + platform %d",
				base, p.TotalCharged, p.WorkerNet, p.PlatformTotal)
		}
		if p.TotalCharged != p.Base+p.BuyerFee {
			t.Fatalf("base %d: charged %d != base + buyer fee", base, p.TotalCharged)
		}
		if p.WorkerNet != p.Base-p.SellerCommission {
			t.Fatalf("base %d: worker net %d != base - commission", base, p.WorkerNet)
		}
	}
}

func TestComputePricingCentsInvalid(t *testing.T) {
	for _, base := range []int64{0, -1, -10000} {
		if _, err := ComputePricingCents(base); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ComputePricingCents(%d) error = %v, want ErrInvalidAmount", base, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100.00", want: 10000},
		{in: "100", want: 10000},
		{in: "0.01", want: 1},
		{in: "3.5", want: 350},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "1.999", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEngagementBalance(t *testing.T) {
	trail := []*Transaction{
		{Type: TransactionTypeDeposit, Amount: 5000, Status: TransactionCompleted},
		{Type: TransactionTypeWithdrawal, Amount: 3000, Status: TransactionCompleted},
		{Type: TransactionTypeFee, Amount: 500, Status: TransactionCompleted},
		{Type: TransactionTypeDeposit, Amount: 9999, Status: TransactionStatus("PENDING")}, // ignored
	}
	if got := EngagementBalance(trail); got != 1500 {
		t.Errorf("EngagementBalance = %d, want 1500", got)
	}
}

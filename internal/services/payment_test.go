package services

import (
	"testing"

	domain "github.com/stocktide/api/internal/domain"
)

func TestPaymentCalculatorStatusFor(t *testing.T) {
	calc := NewPaymentCalculator()

	cases := []struct {
		name       string
		amountPaid int64
		netPayable int64
		want       domain.PaymentStatus
	}{
		{name: "nothing paid", amountPaid: 0, netPayable: 500, want: domain.PaymentStatusUnpaid},
		{name: "partial", amountPaid: 200, netPayable: 500, want: domain.PaymentStatusPartiallyPaid},
		{name: "settled", amountPaid: 500, netPayable: 500, want: domain.PaymentStatusPaid},
		{name: "overpaid", amountPaid: 600, netPayable: 500, want: domain.PaymentStatusPaid},
		{name: "free order", amountPaid: 0, netPayable: 0, want: domain.PaymentStatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := calc.StatusFor(tc.amountPaid, tc.netPayable); got != tc.want {
				t.Fatalf("StatusFor(%d, %d) = %s, want %s", tc.amountPaid, tc.netPayable, got, tc.want)
			}
		})
	}
}

func TestPaymentCalculatorBalanceFloorsAtZero(t *testing.T) {
	calc := NewPaymentCalculator()

	if got := calc.Balance(500, 200); got != 300 {
		t.Fatalf("expected balance 300 got %d", got)
	}
	if got := calc.Balance(500, 600); got != 0 {
		t.Fatalf("expected overpayment to floor at 0, got %d", got)
	}
}

func TestPaymentCalculatorClampAmountPaid(t *testing.T) {
	calc := NewPaymentCalculator()

	if got := calc.ClampAmountPaid(-50, 500); got != 0 {
		t.Fatalf("expected negative payment to clamp to 0, got %d", got)
	}
	if got := calc.ClampAmountPaid(600, 500); got != 500 {
		t.Fatalf("expected payment to clamp to net payable, got %d", got)
	}
	if got := calc.ClampAmountPaid(250, 500); got != 250 {
		t.Fatalf("expected in-range payment to pass through, got %d", got)
	}
}

func TestPaymentCalculatorBuild(t *testing.T) {
	calc := NewPaymentCalculator()

	payment := calc.Build(600, 500)
	if payment.AmountPaid != 500 {
		t.Fatalf("expected clamped amount 500 got %d", payment.AmountPaid)
	}
	if payment.BalanceRemaining != 0 {
		t.Fatalf("expected zero balance got %d", payment.BalanceRemaining)
	}
	if payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected Paid got %s", payment.Status)
	}

	payment = calc.Build(0, 500)
	if payment.Status != domain.PaymentStatusUnpaid || payment.BalanceRemaining != 500 {
		t.Fatalf("unexpected settlement %+v", payment)
	}
}

package services

import domain "github.com/stocktide/api/internal/domain"

type paymentCalculator struct{}

// NewPaymentCalculator constructs the settlement calculator. Status and
// balance are pure functions of the paid amount and the net payable; orders
// never store them independently.
func NewPaymentCalculator() PaymentCalculator {
	return paymentCalculator{}
}

// StatusFor derives the payment status. A zero net payable counts as settled.
func (paymentCalculator) StatusFor(amountPaid, netPayable int64) PaymentStatus {
	switch {
	case amountPaid <= 0 && netPayable > 0:
		return domain.PaymentStatusUnpaid
	case amountPaid >= netPayable:
		return domain.PaymentStatusPaid
	default:
		return domain.PaymentStatusPartiallyPaid
	}
}

// Balance returns the outstanding amount, floored at zero.
func (paymentCalculator) Balance(netPayable, amountPaid int64) int64 {
	balance := netPayable - amountPaid
	if balance < 0 {
		return 0
	}
	return balance
}

// ClampAmountPaid constrains the recorded payment to [0, netPayable].
func (paymentCalculator) ClampAmountPaid(amountPaid, netPayable int64) int64 {
	if amountPaid < 0 {
		return 0
	}
	if amountPaid > netPayable {
		return netPayable
	}
	return amountPaid
}

// Build clamps the paid amount and assembles the full settlement snapshot.
func (c paymentCalculator) Build(amountPaid, netPayable int64) OrderPayment {
	paid := c.ClampAmountPaid(amountPaid, netPayable)
	return OrderPayment{
		AmountPaid:       paid,
		BalanceRemaining: c.Balance(netPayable, paid),
		Status:           c.StatusFor(paid, netPayable),
	}
}

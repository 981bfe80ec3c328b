package entity

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestInvoiceStatusFor(t *testing.T) {
	total := decimal.NewFromFloat(50.00)

	cases := []struct {
		name string
		paid decimal.Decimal
		want string
	}{
		{"untouched", decimal.Zero, InvoiceStatusAwaitingPayment},
		{"partial", decimal.NewFromFloat(20.00), InvoiceStatusPartiallyPaid},
		{"exact", decimal.NewFromFloat(50.00), InvoiceStatusPaid},
		{"within epsilon", decimal.NewFromFloat(49.99), InvoiceStatusPaid},
		{"just below epsilon", decimal.NewFromFloat(49.98), InvoiceStatusPartiallyPaid},
		{"overpaid", decimal.NewFromFloat(50.01), InvoiceStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InvoiceStatusFor(tc.paid, total); got != tc.want {
				t.Errorf("InvoiceStatusFor(%s, %s) = %s, want %s", tc.paid, total, got, tc.want)
			}
		})
	}
}

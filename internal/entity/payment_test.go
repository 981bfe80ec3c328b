package entity

import "testing"

func TestStoredPaymentMethod(t *testing.T) {
	cases := []struct {
		method, reference string
		wantMethod        string
		wantReference     string
	}{
		{PaymentMethodCash, "", PaymentMethodCash, ""},
		{PaymentMethodCard, "TPE-1", PaymentMethodCardBank, "TPE-1"},
		{PaymentMethodMobileMoney, "MM-9", PaymentMethodMobileMoney, "MM-9"},
		{PaymentMethodCheck, "7741", PaymentMethodCash, "CHEQUE: 7741"},
		{PaymentMethodCheck, "", PaymentMethodCash, "CHEQUE"},
	}

	for _, tc := range cases {
		gotMethod, gotRef := StoredPaymentMethod(tc.method, tc.reference)
		if gotMethod != tc.wantMethod || gotRef != tc.wantReference {
			t.Errorf("StoredPaymentMethod(%q, %q) = (%q, %q), want (%q, %q)",
				tc.method, tc.reference, gotMethod, gotRef, tc.wantMethod, tc.wantReference)
		}
	}
}

func TestValidPaymentMethod(t *testing.T) {
	for _, m := range []string{PaymentMethodCash, PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodCheck} {
		if !ValidPaymentMethod(m) {
			t.Errorf("%q rejected, want accepted", m)
		}
	}
	for _, m := range []string{"", "card_bank ", "bitcoin", "CASH"} {
		if ValidPaymentMethod(m) {
			t.Errorf("%q accepted, want rejected", m)
		}
	}
}

// Package numbering produces human-readable invoice numbers.
package numbering

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

const invoicePrefix = "FAC-"

// InvoiceNumberer generates invoice numbers unique per establishment with high
// probability under concurrent calls. Uniqueness is ultimately enforced by the
// database constraint; a collision there is retried with a fresh number.
type InvoiceNumberer struct {
	seq atomic.Uint64
	now func() time.Time
}

// Module provides the invoice numberer to Fx.
var Module = fx.Provide(New)

// New constructs an InvoiceNumberer using the wall clock.
func New() *InvoiceNumberer {
	return &InvoiceNumberer{now: time.Now}
}

// Next returns a fresh invoice number of the form FAC-nnnnnn, derived from a
// millisecond timestamp mixed with an in-process sequence so concurrent calls
// in the same millisecond stay distinct.
func (n *InvoiceNumberer) Next(establishmentID uuid.UUID) string {
	_ = establishmentID // uniqueness is scoped per establishment by the db constraint
	digits := (uint64(n.now().UnixMilli()) + n.seq.Add(1)) % 1_000_000
	return fmt.Sprintf("%s%06d", invoicePrefix, digits)
}

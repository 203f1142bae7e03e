package extract

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
)

// Fixed German VAT bands. Breakdown entries are matched to the nearest band
// within bandTolerance percentage points.
const (
	VATRateReduced = 7.0
	VATRateFull    = 19.0

	bandTolerance = 1.0
)

const defaultStatus = "completed"

// GrossAmount returns the transaction's gross amount, defaulting to 0
func GrossAmount(raw payload.Payload) float64 {
	amount, _ := raw.FirstNumber("amount", "total_amount")
	return amount
}

// RefundedAmount prefers an explicit refunded-amount field; absent that, a
// status containing REFUND, CANCELLED, or VOID implies a full refund equal to
// the gross amount. Never negative.
func RefundedAmount(raw payload.Payload) float64 {
	if refunded, ok := raw.FirstNumber("refunded_amount", "refund_amount"); ok {
		if refunded < 0 {
			return 0
		}
		return refunded
	}

	status := rawStatus(raw)
	if strings.Contains(status, "REFUND") || strings.Contains(status, "CANCELLED") || strings.Contains(status, "VOID") {
		return GrossAmount(raw)
	}

	return 0
}

// NetAmount is the gross amount minus the refunded amount, floored at zero
func NetAmount(raw payload.Payload) float64 {
	return math.Max(0, GrossAmount(raw)-RefundedAmount(raw))
}

// DeriveStatus maps the provider status plus refund figures onto the
// normalized status set. Unrecognized statuses pass through uppercased, so
// the result is always a non-empty string.
func DeriveStatus(raw payload.Payload) string {
	gross := GrossAmount(raw)
	refunded := RefundedAmount(raw)

	switch {
	case gross > 0 && refunded >= gross:
		return transaction.StatusRefunded
	case refunded > 0 && refunded < gross:
		return transaction.StatusPartiallyRefunded
	}

	status := rawStatus(raw)
	switch {
	case strings.Contains(status, "CANCELLED") || strings.Contains(status, "VOID"):
		return transaction.StatusCancelled
	case strings.Contains(status, "SUCCESS") || strings.Contains(status, "COMPLETED") || status == "PAID":
		return transaction.StatusSuccessful
	}

	return status
}

// TipAmount probes the known tip locations in priority order. Tips cannot be
// negative; unparsable or non-positive values resolve to 0.
func TipAmount(raw payload.Payload) float64 {
	tip, ok := raw.FirstNumber(
		"tip_amount",
		"tip",
		"tips.amount",
		"tips.tip_amount",
		"tips.total",
		"transaction_data.tip_amount",
		"transaction_data.tip",
		"receipt_data.tip_amount",
		"receipt_data.tip",
	)
	if !ok || tip <= 0 {
		return 0
	}
	return tip
}

// VATAmount probes the known total-VAT locations in priority order
func VATAmount(raw payload.Payload) float64 {
	vat, ok := raw.FirstNumber(
		"vat_amount",
		"vat",
		"transaction_data.vat_amount",
		"transaction_data.vat",
		"receipt_data.vat_amount",
		"receipt_data.vat",
	)
	if !ok || vat < 0 {
		return 0
	}
	return vat
}

// VATBreakdown splits VAT into the 7% and 19% bands. Direct band fields are
// probed first; a receipt_data.tax_breakdown array of {rate, amount} entries
// is then scanned, each entry assigned to the nearest band within tolerance.
// Both values floor at 0.
func VATBreakdown(raw payload.Payload) (rate7, rate19 float64) {
	rate7, _ = raw.FirstNumber("vat_rate_7_amount", "vat_7", "transaction_data.vat_rate_7_amount")
	rate19, _ = raw.FirstNumber("vat_rate_19_amount", "vat_19", "transaction_data.vat_rate_19_amount")

	if breakdown, ok := raw.Get("receipt_data.tax_breakdown"); ok {
		if entries, ok := breakdown.([]interface{}); ok {
			for _, entry := range entries {
				p, ok := payload.AsPayload(entry)
				if !ok {
					continue
				}
				rate, rateOK := p.FirstNumber("rate", "tax_rate")
				amount, amountOK := p.FirstNumber("amount", "tax_amount")
				if !rateOK || !amountOK {
					continue
				}
				switch {
				case math.Abs(rate-VATRateReduced) <= bandTolerance:
					rate7 += amount
				case math.Abs(rate-VATRateFull) <= bandTolerance:
					rate19 += amount
				}
			}
		}
	}

	return math.Max(0, rate7), math.Max(0, rate19)
}

// TransactionCode returns the provider's transaction identifier
func TransactionCode(raw payload.Payload) string {
	id, _ := raw.FirstString("id", "transaction_code", "transaction_id")
	return id
}

// NormalizeTransaction builds a canonical record from a raw payload. The raw
// payload is archived on the record verbatim.
func NormalizeTransaction(organizationID uuid.UUID, merchantCode string, raw payload.Payload) *transaction.Record {
	gross := GrossAmount(raw)
	refunded := RefundedAmount(raw)
	rate7, rate19 := VATBreakdown(raw)

	currency, ok := raw.FirstString("currency")
	if !ok {
		currency = "EUR"
	}

	orgID := organizationID
	return &transaction.Record{
		OrganizationID:  &orgID,
		TransactionID:   TransactionCode(raw),
		Amount:          gross,
		RefundedAmount:  refunded,
		NetAmount:       math.Max(0, gross-refunded),
		Currency:        currency,
		Status:          DeriveStatus(raw),
		TransactionDate: transactionTimestamp(raw),
		TipAmount:       TipAmount(raw),
		VATAmount:       VATAmount(raw),
		VATRate7Amount:  rate7,
		VATRate19Amount: rate19,
		MerchantCode:    merchantCode,
		RawPayload:      raw,
		LastUpdatedAt:   time.Now().UTC(),
	}
}

func rawStatus(raw payload.Payload) string {
	status, ok := raw.FirstString("status", "simple_status")
	if !ok {
		status = defaultStatus
	}
	return strings.ToUpper(status)
}

func transactionTimestamp(raw payload.Payload) time.Time {
	value, ok := raw.FirstString("timestamp", "transaction_date", "created_at", "date")
	if !ok {
		return time.Now().UTC()
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", dateOnlyLayout} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

const dateOnlyLayout = "2006-01-02"

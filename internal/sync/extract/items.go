// Package extract derives canonical line items and financial figures from
// raw SumUp transaction payloads. Payload shapes vary by endpoint version, so
// every derivation probes an ordered list of candidate field locations and
// takes the first match.
package extract

import (
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
)

// Sentinels for heuristically extracted names. The dashboard renders German
// labels; these match what the un-migrated data already contains.
const (
	UnknownProductName = "Unbekannt"
	GrandTotalName     = "Gesamtbetrag"
)

// itemLocations are probed in priority order; the first non-empty array wins
// and locations are never merged.
var itemLocations = []string{
	"items",
	"products",
	"line_items",
	"receipt_data.items",
	"transaction_data.items",
}

// ExtractItems normalizes a raw transaction's line items. When no location
// holds items and the transaction has a nonzero gross amount, a single
// synthetic grand-total item is returned so the transaction still reports
// revenue at item granularity.
func ExtractItems(raw payload.Payload) []*transaction.Item {
	rawItems, ok := raw.FirstArray(itemLocations...)
	if !ok {
		return fallbackItem(raw)
	}

	var items []*transaction.Item
	for _, entry := range rawItems {
		itemPayload, ok := payload.AsPayload(entry)
		if !ok {
			continue
		}
		items = append(items, normalizeItem(itemPayload))
	}

	if len(items) == 0 {
		return fallbackItem(raw)
	}
	return items
}

func normalizeItem(item payload.Payload) *transaction.Item {
	name, ok := item.FirstString("name", "product_name", "title")
	if !ok {
		name = UnknownProductName
	}

	quantity, ok := item.FirstNumber("quantity", "qty")
	if !ok {
		quantity = 1
	}

	unitPrice, ok := item.FirstNumber("unit_price", "price", "amount")
	if !ok {
		unitPrice = 0
	}

	totalPrice, ok := item.FirstNumber("total_price", "total", "amount")
	if !ok {
		totalPrice = 0
	}

	return &transaction.Item{
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  totalPrice,
		RawItem:     item,
	}
}

func fallbackItem(raw payload.Payload) []*transaction.Item {
	gross := GrossAmount(raw)
	if gross == 0 {
		return nil
	}

	return []*transaction.Item{{
		ProductName: GrandTotalName,
		Quantity:    1,
		UnitPrice:   gross,
		TotalPrice:  gross,
		RawItem: payload.Payload{
			"synthetic": true,
			"source":    "transaction_total",
			"amount":    gross,
		},
	}}
}

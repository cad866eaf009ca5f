package posfeed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Supported feed providers.
const (
	ProviderSquare  = "square"
	ProviderGeneric = "generic"
)

// LineRecord is one POS sale line normalized to the staged-row shape the
// sales transform consumes. Quantity stays an exact decimal string.
type LineRecord struct {
	OrderId         string
	LineItemId      string
	CatalogObjectId string
	Name            string
	Quantity        string
	TotalMoneyCents int64
	TransactionDate time.Time
}

// FeedEnvelope tags a payload with its provider. Dispatch is on the tag
// alone: payloads are never probed for shape.
type FeedEnvelope struct {
	Provider string          `json:"provider"`
	Orders   json.RawMessage `json:"orders"`
}

type feedDecoder func(raw json.RawMessage) ([]LineRecord, error)

var feedDecoders = map[string]feedDecoder{
	ProviderSquare:  decodeSquareOrders,
	ProviderGeneric: decodeGenericLines,
}

// DecodeFeed unwraps a provider envelope and decodes its orders into
// line records. Unknown providers are an error, not a guess.
func DecodeFeed(raw []byte) (string, []LineRecord, error) {
	var envelope FeedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", nil, fmt.Errorf("feed envelope: %w", err)
	}
	decode, ok := feedDecoders[envelope.Provider]
	if !ok {
		return "", nil, fmt.Errorf("unsupported feed provider %q", envelope.Provider)
	}
	records, err := decode(envelope.Orders)
	if err != nil {
		return "", nil, err
	}
	return envelope.Provider, records, nil
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareLineItem struct {
	Uid             string      `json:"uid"`
	CatalogObjectId string      `json:"catalog_object_id"`
	Name            string      `json:"name"`
	Quantity        string      `json:"quantity"`
	TotalMoney      squareMoney `json:"total_money"`
}

type squareOrder struct {
	Id        string           `json:"id"`
	ClosedAt  time.Time        `json:"closed_at"`
	LineItems []squareLineItem `json:"line_items"`
}

func decodeSquareOrders(raw json.RawMessage) ([]LineRecord, error) {
	var orders []squareOrder
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("square orders: %w", err)
	}
	var records []LineRecord
	for _, order := range orders {
		for _, line := range order.LineItems {
			records = append(records, LineRecord{
				OrderId:         order.Id,
				LineItemId:      line.Uid,
				CatalogObjectId: line.CatalogObjectId,
				Name:            line.Name,
				Quantity:        line.Quantity,
				TotalMoneyCents: line.TotalMoney.Amount,
				TransactionDate: order.ClosedAt,
			})
		}
	}
	return records, nil
}

// genericLine is the flat shape partner integrations post when they do
// not speak a first-class provider format.
type genericLine struct {
	OrderId         string    `json:"order_id"`
	LineItemId      string    `json:"line_item_id"`
	CatalogObjectId string    `json:"catalog_object_id"`
	Name            string    `json:"name"`
	Quantity        string    `json:"quantity"`
	TotalMoneyCents int64     `json:"total_money_cents"`
	TransactionDate time.Time `json:"transaction_date"`
}

func decodeGenericLines(raw json.RawMessage) ([]LineRecord, error) {
	var lines []genericLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("generic lines: %w", err)
	}
	records := make([]LineRecord, 0, len(lines))
	for _, line := range lines {
		records = append(records, LineRecord{
			OrderId:         line.OrderId,
			LineItemId:      line.LineItemId,
			CatalogObjectId: line.CatalogObjectId,
			Name:            line.Name,
			Quantity:        line.Quantity,
			TotalMoneyCents: line.TotalMoneyCents,
			TransactionDate: line.TransactionDate,
		})
	}
	return records, nil
}

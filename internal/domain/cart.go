package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	localIDPrefix = "local-"

	// PlaceholderProductName is shown for a line created locally until the
	// authoritative snapshot arrives.
	PlaceholderProductName = "loading..."
)

// ProductID is a product reference in canonical form: a trimmed string.
// Upstream payloads carry it either as a JSON string or a JSON number.
type ProductID string

func NormalizeProductID(raw string) ProductID {
	return ProductID(strings.TrimSpace(raw))
}

func (p ProductID) String() string { return string(p) }

func (p ProductID) IsZero() bool { return p == "" }

func (p *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("product id: %w", err)
		}
		*p = NormalizeProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*p = NormalizeProductID(n.String())
	return nil
}

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	ISBN        string          `json:"isbn,omitempty"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
}

func PlaceholderProduct(id ProductID) Product {
	return Product{
		ID:    id,
		Name:  PlaceholderProductName,
		Price: decimal.Zero,
	}
}

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LineState tracks where a line is in its optimistic lifecycle.
// A resync moves every line to Confirmed.
type LineState int

const (
	Confirmed LineState = iota
	PendingCreate
	PendingUpdate
	PendingDelete
)

func (s LineState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case PendingCreate:
		return "pending_create"
	case PendingUpdate:
		return "pending_update"
	case PendingDelete:
		return "pending_delete"
	default:
		return fmt.Sprintf("LineState(%d)", int(s))
	}
}

func (s LineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LineState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "confirmed":
		*s = Confirmed
	case "pending_create":
		*s = PendingCreate
	case "pending_update":
		*s = PendingUpdate
	case "pending_delete":
		*s = PendingDelete
	default:
		return fmt.Errorf("unknown line state %q", text)
	}
	return nil
}

type CartLine struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"memberId"`
	ProductID ProductID `json:"productId"`
	Qty       int       `json:"qty"`
	Product   Product   `json:"product"`
	State     LineState `json:"state"`
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// NewLocalID returns a time-ordered placeholder id for a line that has not
// been persisted yet.
func NewLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return localIDPrefix + uuid.NewString()
	}
	return localIDPrefix + id.String()
}

// Snapshot is a point-in-time copy of the cart suitable for rendering.
type Snapshot struct {
	MemberID   string          `json:"memberId"`
	Lines      []CartLine      `json:"lines"`
	Count      int             `json:"count"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Loading    bool            `json:"loading"`
}

// TotalQty sums quantities across lines.
func TotalQty(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Qty
	}
	return total
}

func TotalPrice(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func CloneLines(src []CartLine) []CartLine {
	if len(src) == 0 {
		return []CartLine{}
	}
	out := make([]CartLine, len(src))
	copy(out, src)
	return out
}

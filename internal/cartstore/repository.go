package cartstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLineNotFound = errors.New("line not found")
	ErrForbidden    = errors.New("line belongs to another member")
	ErrInvalidQty   = errors.New("qty must be greater than 0")
)

// LineRecord is one persisted cart line. One record exists per
// (member, product) pair.
type LineRecord struct {
	ID        string    `bson:"_id"`
	MemberID  string    `bson:"member_id"`
	ProductID string    `bson:"product_id"`
	Qty       int       `bson:"qty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Repository defines the interface for cart line storage
// Consumers define this interface, not the MongoDB implementation
type Repository interface {
	ListLines(ctx context.Context, memberID string) ([]LineRecord, error)
	GetLine(ctx context.Context, id string) (LineRecord, error)
	// AddOrMerge adds qty to the member's line for productID, creating the
	// line when none exists.
	AddOrMerge(ctx context.Context, memberID, productID string, qty int) (LineRecord, error)
	UpdateQty(ctx context.Context, id string, qty int) error
	DeleteLine(ctx context.Context, id string) error
	DeleteMember(ctx context.Context, memberID string) (int64, error)
}

package cartstore

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MemberClearer empties a member's stored cart once their checkout
// completes. It plugs into the checkout poller.
type MemberClearer struct {
	Repo Repository
	Log  logrus.FieldLogger
}

func (c MemberClearer) ClearMember(ctx context.Context, memberID string) bool {
	n, err := c.Repo.DeleteMember(ctx, memberID)
	if err != nil {
		c.Log.WithError(err).WithField("member_id", memberID).WithContext(ctx).Error("failed to delete cart")
		return false
	}
	return n > 0
}

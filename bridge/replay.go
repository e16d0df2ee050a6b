// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/backend"
	"github.com/usdrise/receiver/cache"
)

// settledCache remembers committed message ids. It is only ever filled after
// a commit, so a hit is always a true duplicate.
type settledCache struct {
	ids *cache.LRUCache[ids.ID, struct{}]
}

func newSettledCache(size int) *settledCache {
	if size <= 0 {
		return &settledCache{}
	}
	return &settledCache{ids: cache.NewLRUCache[ids.ID, struct{}](size)}
}

func (c *settledCache) contains(id ids.ID) bool {
	return c.ids != nil && c.ids.Contains(id)
}

func (c *settledCache) add(id ids.ID) {
	if c.ids != nil {
		c.ids.Add(id, struct{}{})
	}
}

// admit inserts rec into the settled set unless its id is already there. It
// must run in the same unit of work as the transfer it guards.
func admit(tx backend.Tx, rec *receiver.SettlementRecord) error {
	_, err := tx.Settlement(rec.MessageID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", receiver.ErrAlreadySettled, receiver.FormatMessageID(rec.MessageID))
	case !errors.Is(err, backend.ErrNotFound):
		return err
	}
	return tx.PutSettlement(rec)
}

package notify

import (
	"context"
	"sync"

	"github.com/brickmini/storefront/internal/domain"
)

// Fanout notifies every wrapped notifier concurrently and succeeds if any of them did.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, draft domain.OrderDraft, orderNumber, orderID string) bool {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok bool
	)
	for _, n := range f {
		if n == nil {
			continue
		}
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if n.Notify(ctx, draft, orderNumber, orderID) {
				mu.Lock()
				ok = true
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	return ok
}

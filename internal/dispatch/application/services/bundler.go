package services

import "github.com/fieldworks/dispatchd/internal/dispatch/domain"

// Bundler groups jobs sharing an order into single schedulable units.
type Bundler struct{}

// NewBundler creates a bundler.
func NewBundler() *Bundler {
	return &Bundler{}
}

// Bundle partitions jobs by order id. Partitions of one become single
// jobs; larger ones become bundles. Output order follows the first
// appearance of each order in the input, so a fixed input yields a
// fixed output.
func (b *Bundler) Bundle(jobs []*domain.Job) []domain.SchedulableItem {
	byOrder := make(map[int64][]*domain.Job)
	orderSeen := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		if _, ok := byOrder[job.OrderID]; !ok {
			orderSeen = append(orderSeen, job.OrderID)
		}
		byOrder[job.OrderID] = append(byOrder[job.OrderID], job)
	}

	items := make([]domain.SchedulableItem, 0, len(orderSeen))
	for _, orderID := range orderSeen {
		group := byOrder[orderID]
		if len(group) == 1 {
			items = append(items, domain.SingleJob{Job: group[0]})
			continue
		}
		items = append(items, domain.Bundle{OrderID: orderID, Members: group})
	}
	return items
}

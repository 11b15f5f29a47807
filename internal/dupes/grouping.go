package dupes

import "time"

type Group struct {
	Key    PhoneKey `json:"phone"`
	Orders []Order  `json:"orders"`
}

// WindowStart is the inclusive lower bound of the lookback window ending at now.
func WindowStart(now time.Time, searchDays int) time.Time {
	return now.Add(-time.Duration(ClampSearchDays(searchDays)) * 24 * time.Hour)
}

// InWindow keeps orders created within [now-searchDays, now], both bounds inclusive.
func InWindow(orders []Order, now time.Time, searchDays int) []Order {
	start := WindowStart(now, searchDays)
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		if order.CreatedAt.Before(start) || order.CreatedAt.After(now) {
			continue
		}
		out = append(out, order)
	}
	return out
}

// GroupByPhone returns groups in first-seen key order with members in input
// order. Orders without a phone and keys with a single order are dropped.
func GroupByPhone(orders []Order) []Group {
	index := map[PhoneKey]int{}
	all := []Group{}
	for _, order := range orders {
		key := PhoneKeyOf(order)
		if !key.Resolved() {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(all)
			index[key] = i
			all = append(all, Group{Key: key})
		}
		all[i].Orders = append(all[i].Orders, order)
	}
	out := make([]Group, 0, len(all))
	for _, group := range all {
		if len(group.Orders) >= 2 {
			out = append(out, group)
		}
	}
	return out
}

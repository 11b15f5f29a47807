package dupes

// Decision is the outcome of resolving one Group. Canonical is the order that
// gets remediated; Redundant only supplies the reference numbers for its note.
type Decision struct {
	Key          PhoneKey
	Canonical    Order
	Redundant    []Order
	SiblingNames []string
}

// Resolve picks the first unfulfilled member as canonical. Groups with no
// unfulfilled member yield no decision. Later unfulfilled members stay
// redundant and are never remediated themselves.
func Resolve(group Group) (Decision, bool) {
	if len(group.Orders) < 2 {
		return Decision{}, false
	}
	canonical := -1
	for i, order := range group.Orders {
		if order.FulfillmentStatus.IsUnfulfilled() {
			canonical = i
			break
		}
	}
	if canonical < 0 {
		return Decision{}, false
	}
	redundant := make([]Order, 0, len(group.Orders)-1)
	for i, order := range group.Orders {
		if i != canonical {
			redundant = append(redundant, order)
		}
	}
	return newDecision(group.Key, group.Orders[canonical], redundant), true
}

func ResolveAll(groups []Group) []Decision {
	out := make([]Decision, 0, len(groups))
	for _, group := range groups {
		if decision, ok := Resolve(group); ok {
			out = append(out, decision)
		}
	}
	return out
}

func newDecision(key PhoneKey, canonical Order, redundant []Order) Decision {
	return Decision{
		Key:          key,
		Canonical:    canonical,
		Redundant:    append([]Order(nil), redundant...),
		SiblingNames: orderNames(redundant),
	}
}

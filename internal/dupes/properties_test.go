package dupes

import (
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type orderSeed struct {
	Phone  int
	Status int
}

func genOrderSeeds() gopter.Gen {
	seed := gopter.CombineGens(gen.IntRange(0, 4), gen.IntRange(0, 2)).Map(func(values []interface{}) orderSeed {
		return orderSeed{Phone: values[0].(int), Status: values[1].(int)}
	})
	return gen.SliceOf(seed)
}

// Phone 0 means no phone; status 0 is null, 1 unfulfilled, 2 fulfilled.
func ordersFromSeeds(seeds []orderSeed) []Order {
	statuses := []FulfillmentStatus{"", FulfillmentUnfulfilled, FulfillmentFulfilled}
	out := make([]Order, 0, len(seeds))
	for i, seed := range seeds {
		phone := ""
		if seed.Phone > 0 {
			phone = "+40" + strconv.Itoa(seed.Phone)
		}
		out = append(out, testOrder(strconv.Itoa(i), "#"+strconv.Itoa(1000+i), phone, statuses[seed.Status], testNow))
	}
	return out
}

func TestGroupingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("groups have at least two members and a resolved key", prop.ForAll(
		func(seeds []orderSeed) bool {
			for _, group := range GroupByPhone(ordersFromSeeds(seeds)) {
				if len(group.Orders) < 2 || !group.Key.Resolved() {
					return false
				}
				for _, order := range group.Orders {
					if PhoneKeyOf(order) != group.Key {
						return false
					}
				}
			}
			return true
		},
		genOrderSeeds(),
	))

	properties.Property("grouping is deterministic", prop.ForAll(
		func(seeds []orderSeed) bool {
			orders := ordersFromSeeds(seeds)
			return reflect.DeepEqual(GroupByPhone(orders), GroupByPhone(orders))
		},
		genOrderSeeds(),
	))

	properties.Property("members keep input order", prop.ForAll(
		func(seeds []orderSeed) bool {
			for _, group := range GroupByPhone(ordersFromSeeds(seeds)) {
				for i := 1; i < len(group.Orders); i++ {
					prev, _ := strconv.Atoi(group.Orders[i-1].ID)
					next, _ := strconv.Atoi(group.Orders[i].ID)
					if prev >= next {
						return false
					}
				}
			}
			return true
		},
		genOrderSeeds(),
	))

	properties.Property("canonical is unfulfilled and fulfilled-only groups yield nothing", prop.ForAll(
		func(seeds []orderSeed) bool {
			for _, group := range GroupByPhone(ordersFromSeeds(seeds)) {
				decision, ok := Resolve(group)
				hasOpen := false
				for _, order := range group.Orders {
					if order.FulfillmentStatus.IsUnfulfilled() {
						hasOpen = true
					}
				}
				if ok != hasOpen {
					return false
				}
				if ok && (!decision.Canonical.FulfillmentStatus.IsUnfulfilled() || len(decision.Redundant) != len(group.Orders)-1) {
					return false
				}
			}
			return true
		},
		genOrderSeeds(),
	))

	properties.TestingRun(t)
}

func TestTagAndNoteProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("adding a tag twice never duplicates it", prop.ForAll(
		func(existing []string, tag string) bool {
			if tag == "" {
				return true
			}
			once, _ := ParseTags(strings.Join(existing, ",")).Add(tag)
			twice, _ := once.Add(tag)
			count := 0
			for _, value := range twice {
				if value == tag {
					count++
				}
			}
			return count == 1
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.Property("appending a note never loses entries", prop.ForAll(
		func(entries []string, next string) bool {
			note := ""
			for _, entry := range entries {
				note = AppendNote(note, entry)
			}
			return len(NoteEntries(AppendNote(note, next))) >= len(NoteEntries(note))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

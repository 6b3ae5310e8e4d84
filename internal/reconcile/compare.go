package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/states"
)

// Key is the part of a row two extractions must agree on. Probable and HCW
// are rendered too unreliably to compare, though they are still persisted.
type Key struct {
	State     string
	Suspected model.Count
	Confirmed model.Count
	Deaths    model.Count
}

func (k Key) String() string {
	return fmt.Sprintf("{States: %q, Suspected: %q, Confirmed: %q, Deaths: %q}",
		k.State, k.Suspected.String(), k.Confirmed.String(), k.Deaths.String())
}

// Normalize prepares rows for comparison. Rows with a blank state, and
// non-Total rows whose counts are all blank, are dropped. The remaining rows
// are sorted by comparison key with Total rows kept last in input order.
func Normalize(rows []model.Row) []Key {
	var body, totals []model.Row
	for _, r := range rows {
		switch {
		case strings.TrimSpace(r.State) == "":
		case r.IsTotal():
			totals = append(totals, r)
		case r.Empty():
		default:
			body = append(body, r)
		}
	}
	slices.SortStableFunc(body, func(a, b model.Row) int {
		return strings.Compare(states.CompareKey(a.State), states.CompareKey(b.State))
	})

	keys := make([]Key, 0, len(body)+len(totals))
	for _, r := range append(body, totals...) {
		keys = append(keys, Key{
			State:     states.CompareKey(r.State),
			Suspected: r.Suspected,
			Confirmed: r.Confirmed,
			Deaths:    r.Deaths,
		})
	}
	return keys
}

// Agree reports whether two row sets match after normalization.
func Agree(a, b []model.Row) bool {
	return slices.Equal(Normalize(a), Normalize(b))
}

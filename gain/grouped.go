package gain

import (
	"fmt"
	"sort"

	"github.com/arloliu/go-autd3/geometry"
	"golang.org/x/sync/errgroup"
)

// Grouped applies a distinct gain to each device group.
//
// Every member gain is evaluated on the whole geometry; the state of transducer
// i is then taken from the gain registered for the group of its device.
// Transducers of groups without a gain are left off.
type Grouped struct {
	gains map[int]Gain
}

var _ Gain = (*Grouped)(nil)

// NewGrouped creates an empty grouped gain.
func NewGrouped() *Grouped {
	return &Grouped{gains: make(map[int]Gain)}
}

// Add registers g for devices of groupID, replacing any previous gain.
func (g *Grouped) Add(groupID int, gain Gain) *Grouped {
	g.gains[groupID] = gain
	return g
}

func (g *Grouped) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	if geo == nil {
		return nil, ErrNilGeometry
	}

	groupIDs := geo.GroupIDs()
	needed := make(map[int]struct{})
	for _, id := range groupIDs {
		if _, ok := g.gains[id]; ok {
			needed[id] = struct{}{}
		}
	}

	ids := make([]int, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	results := make([][]TransducerState, len(ids))
	var eg errgroup.Group
	for i, id := range ids {
		eg.Go(func() error {
			states, err := g.gains[id].Calc(geo)
			if err != nil {
				return fmt.Errorf("group %d: %w", id, err)
			}
			if len(states) != len(groupIDs) {
				return fmt.Errorf("group %d: %w", id, ErrDimensionMismatch)
			}
			results[i] = states

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byGroup := make(map[int][]TransducerState, len(ids))
	for i, id := range ids {
		byGroup[id] = results[i]
	}

	states := make([]TransducerState, len(groupIDs))
	for i, id := range groupIDs {
		if src, ok := byGroup[id]; ok {
			states[i] = src[i]
		}
	}

	return states, nil
}

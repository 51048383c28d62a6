package shipments

import (
	"strings"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/selector"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
)

const (
	SelectorFilteredShipments = "filteredShipments"
	SelectorShipmentStats     = "shipmentStats"

	statsTotal = "total"
)

// Stats counts shipments per status plus a "total" entry.
type Stats map[string]int

func SelectAllShipments(state State) []contracts.ShipmentRecord {
	if state.Shipments == nil {
		return []contracts.ShipmentRecord{}
	}
	return state.Shipments
}

func SelectStatus(state State) LoadStatus { return state.Status }

func SelectError(state State) *string { return state.Error }

func SelectLastUpdated(state State) *time.Time { return state.LastUpdated }

// FilterAll is the dashboard's "no filter" value.
const FilterAll = "all"

// FilterShipments keeps records whose status matches filter, ignoring case.
// An empty filter or FilterAll keeps everything.
func FilterShipments(records []contracts.ShipmentRecord, filter string) []contracts.ShipmentRecord {
	if filter == "" || strings.EqualFold(filter, FilterAll) {
		return records
	}
	out := make([]contracts.ShipmentRecord, 0, len(records))
	for _, r := range records {
		if r.Status != "" && strings.EqualFold(string(r.Status), filter) {
			out = append(out, r)
		}
	}
	return out
}

func ComputeStats(records []contracts.ShipmentRecord) Stats {
	stats := Stats{statsTotal: 0}
	for _, r := range records {
		stats[statsTotal]++
		stats[string(r.Status)]++
	}
	return stats
}

// Selectors are the instrumented, memoized derived views of the slice.
// Results are shared between calls with unchanged inputs: callers must not
// modify them.
type Selectors struct {
	filtered *selector.Selector[State, []contracts.ShipmentRecord]
	stats    *selector.Selector[State, Stats]
}

func NewSelectors(reg *selector.Registry) (*Selectors, error) {
	allShipments := func(state State, _ []any) any { return state.Shipments }
	filterParam := func(_ State, params []any) any {
		if len(params) == 0 {
			return ""
		}
		return normalizeFilter(params[0])
	}

	filtered, err := selector.New(reg, SelectorFilteredShipments,
		[]selector.Input[State]{allShipments, filterParam},
		func(args ...any) []contracts.ShipmentRecord {
			records, _ := args[0].([]contracts.ShipmentRecord)
			if records == nil {
				records = []contracts.ShipmentRecord{}
			}
			return FilterShipments(records, args[1].(string))
		})
	if err != nil {
		return nil, err
	}

	stats, err := selector.New(reg, SelectorShipmentStats,
		[]selector.Input[State]{allShipments},
		func(args ...any) Stats {
			records, _ := args[0].([]contracts.ShipmentRecord)
			return ComputeStats(records)
		})
	if err != nil {
		return nil, err
	}
	return &Selectors{filtered: filtered, stats: stats}, nil
}

// FilteredShipments returns the shipments matching filter. filter may be a
// string, a *string or nil.
func (s *Selectors) FilteredShipments(state State, filter any) ([]contracts.ShipmentRecord, error) {
	return s.filtered.Select(state, filter)
}

// VisibleShipments applies the filter stored in the state.
func (s *Selectors) VisibleShipments(state State) ([]contracts.ShipmentRecord, error) {
	return s.filtered.Select(state, state.Filter)
}

func (s *Selectors) ShipmentStats(state State) (Stats, error) {
	return s.stats.Select(state)
}

func normalizeFilter(v any) string {
	switch f := v.(type) {
	case string:
		return f
	case *string:
		if f != nil {
			return *f
		}
	}
	return ""
}

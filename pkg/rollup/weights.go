package rollup

import (
	"strings"

	"github.com/marketops/delivery-engine/pkg/types"
)

// statusWeights is the canonical priority table. Lower weight surfaces first
// when sibling statuses are combined: an error outranks an in-flight
// delivery, which outranks anything settled.
var statusWeights = map[types.Status]int{
	types.StatusError:          0,
	types.StatusDelivering:     1,
	types.StatusNotDelivered:   2,
	types.StatusDeliveryPaused: 3,
	types.StatusDelivered:      4,
	types.StatusActive:         5,
}

// canonicalNames maps normalized raw status strings, as they appear in stored
// documents from older writers, onto the canonical set.
var canonicalNames = map[string]types.Status{
	"notdelivered":   types.StatusNotDelivered,
	"delivering":     types.StatusDelivering,
	"delivered":      types.StatusDelivered,
	"error":          types.StatusError,
	"failed":         types.StatusError,
	"deliverypaused": types.StatusDeliveryPaused,
	"paused":         types.StatusDeliveryPaused,
	"active":         types.StatusActive,
	"inactive":       types.StatusInactive,
}

// Normalize maps a raw stored status string to its canonical Status.
// Unrecognized values normalize to NotDelivered so stale or foreign data
// degrades to "nothing has happened yet" rather than a spurious error.
func Normalize(raw string) types.Status {
	key := strings.ToLower(raw)
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	if s, ok := canonicalNames[key]; ok {
		return s
	}
	return types.StatusNotDelivered
}

// Weight returns the priority weight of a status. Statuses outside the table
// weigh the same as NotDelivered.
func Weight(s types.Status) int {
	if w, ok := statusWeights[s]; ok {
		return w
	}
	return statusWeights[types.StatusNotDelivered]
}

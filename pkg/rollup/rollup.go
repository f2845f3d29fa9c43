// Package rollup computes destination, audience and engagement statuses from
// nested delivery data. Everything here is pure: no I/O, no clock reads, same
// input always yields the same output.
package rollup

import (
	"time"

	"github.com/marketops/delivery-engine/pkg/types"
)

// RollupDestination reduces one destination attachment to a status. Without
// any delivery job the destination is NotDelivered; otherwise the latest
// job's stored status, normalized.
func RollupDestination(att types.DestinationAttachment) types.Status {
	if att.LatestDelivery == nil {
		return types.StatusNotDelivered
	}
	return Normalize(string(att.LatestDelivery.Status))
}

// RollupAudience reduces an audience's destination attachments to a single
// status by picking the minimum-weight destination status. An audience with
// no attachments is NotDelivered.
func RollupAudience(attachments []types.DestinationAttachment) types.Status {
	if len(attachments) == 0 {
		return types.StatusNotDelivered
	}

	best := RollupDestination(attachments[0])
	for _, att := range attachments[1:] {
		if s := RollupDestination(att); Weight(s) < Weight(best) {
			best = s
		}
	}
	return best
}

// RollupEngagement reduces an engagement to a single status. The rules form
// an ordered decision list and the order is load-bearing: an in-flight
// Delivering always wins over the schedule-window check, so a mid-window
// delivery is never masked as merely scheduled-inactive.
func RollupEngagement(e types.Engagement, now time.Time) types.Status {
	if e.Inactive {
		return types.StatusInactive
	}

	statuses := make([]types.Status, 0, len(e.Audiences))
	for _, aud := range e.Audiences {
		statuses = append(statuses, RollupAudience(aud.Attachments))
	}

	for _, s := range statuses {
		if s == types.StatusDelivering {
			return types.StatusDelivering
		}
	}

	if e.Schedule != nil && e.Schedule.StartDate != nil && e.Schedule.EndDate != nil {
		if !now.Before(*e.Schedule.StartDate) && !now.After(*e.Schedule.EndDate) {
			return types.StatusActive
		}
		return types.StatusInactive
	}

	for _, s := range statuses {
		if s == types.StatusNotDelivered {
			return types.StatusInactive
		}
	}

	allDelivered := true
	for _, s := range statuses {
		if s != types.StatusDelivered {
			allDelivered = false
			break
		}
	}
	if allDelivered {
		return types.StatusActive
	}

	return types.StatusError
}

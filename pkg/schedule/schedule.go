// Package schedule validates recurring delivery schedules, resolves their
// next occurrences, and decides whether the system-wide event-driven delivery
// trigger should run.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/store"
	"github.com/marketops/delivery-engine/pkg/types"
)

// ErrInvalidScheduleShape is returned when a DeliverySchedule does not have
// exactly one periodicity branch populated or a field is out of range.
var ErrInvalidScheduleShape = errors.New("invalid schedule shape")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var dayOfWeekNames = map[string]string{
	"sunday":    "SUN",
	"monday":    "MON",
	"tuesday":   "TUE",
	"wednesday": "WED",
	"thursday":  "THU",
	"friday":    "FRI",
	"saturday":  "SAT",
}

// ShouldEnableEventDrivenTrigger decides whether the external event-driven
// delivery trigger should be enabled. The trigger runs iff at least one
// engagement currently has an active, Delivered delivery. Designed to be
// evaluated on every control-loop tick.
func ShouldEnableEventDrivenTrigger(activeDeliveryCount int) bool {
	return activeDeliveryCount > 0
}

// Validate checks that exactly one periodicity-specific field set is
// populated and that clock fields are in range.
func Validate(s types.DeliverySchedule) error {
	if s.Every < 1 {
		return fmt.Errorf("%w: every must be >= 1", ErrInvalidScheduleShape)
	}
	if s.Hour < 1 || s.Hour > 12 {
		return fmt.Errorf("%w: hour %d out of 12-hour range", ErrInvalidScheduleShape, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidScheduleShape, s.Minute)
	}
	if s.Period != "AM" && s.Period != "PM" {
		return fmt.Errorf("%w: period must be AM or PM", ErrInvalidScheduleShape)
	}

	switch s.Periodicity {
	case types.PeriodicityDaily:
		if len(s.DaysOfWeek) > 0 || len(s.DaysOfMonth) > 0 || len(s.MonthlyPeriods) > 0 {
			return fmt.Errorf("%w: daily schedule must not set day fields", ErrInvalidScheduleShape)
		}
	case types.PeriodicityWeekly:
		if len(s.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly schedule requires daysOfWeek", ErrInvalidScheduleShape)
		}
		if len(s.DaysOfMonth) > 0 || len(s.MonthlyPeriods) > 0 {
			return fmt.Errorf("%w: weekly schedule must not set monthly fields", ErrInvalidScheduleShape)
		}
		for _, d := range s.DaysOfWeek {
			if _, ok := dayOfWeekNames[strings.ToLower(d)]; !ok {
				return fmt.Errorf("%w: unknown day of week %q", ErrInvalidScheduleShape, d)
			}
		}
	case types.PeriodicityMonthly:
		if len(s.DaysOfWeek) > 0 {
			return fmt.Errorf("%w: monthly schedule must not set daysOfWeek", ErrInvalidScheduleShape)
		}
		if (len(s.DaysOfMonth) == 0) == (len(s.MonthlyPeriods) == 0) {
			return fmt.Errorf("%w: monthly schedule requires exactly one of daysOfMonth or monthlyPeriods", ErrInvalidScheduleShape)
		}
		for _, d := range s.DaysOfMonth {
			if d < 1 || d > 31 {
				return fmt.Errorf("%w: day of month %d out of range", ErrInvalidScheduleShape, d)
			}
		}
		for _, p := range s.MonthlyPeriods {
			if p != types.MonthlyFirstDay && p != types.MonthlyLastDay {
				return fmt.Errorf("%w: unknown monthly period %q", ErrInvalidScheduleShape, p)
			}
		}
	default:
		return fmt.Errorf("%w: unknown periodicity %q", ErrInvalidScheduleShape, s.Periodicity)
	}
	return nil
}

// NextOccurrence resolves the next dispatch time for a schedule strictly
// after from. The schedule is validated first.
func NextOccurrence(s types.DeliverySchedule, from time.Time) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}

	spec, err := cronSpec(s)
	if err != nil {
		return time.Time{}, err
	}

	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidScheduleShape, err)
	}
	return sched.Next(from), nil
}

// cronSpec converts a validated DeliverySchedule into a five-field cron
// expression. Monthly named periods resolve to concrete days: first to 1,
// last to 28, the latest day every month has.
func cronSpec(s types.DeliverySchedule) (string, error) {
	minute := strconv.Itoa(s.Minute)
	hour := strconv.Itoa(s.Hour24())

	switch s.Periodicity {
	case types.PeriodicityDaily:
		dom := "*"
		if s.Every > 1 {
			dom = fmt.Sprintf("*/%d", s.Every)
		}
		return fmt.Sprintf("%s %s %s * *", minute, hour, dom), nil

	case types.PeriodicityWeekly:
		days := make([]string, 0, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			days = append(days, dayOfWeekNames[strings.ToLower(d)])
		}
		return fmt.Sprintf("%s %s * * %s", minute, hour, strings.Join(days, ",")), nil

	case types.PeriodicityMonthly:
		days := make([]string, 0, len(s.DaysOfMonth)+len(s.MonthlyPeriods))
		for _, d := range s.DaysOfMonth {
			days = append(days, strconv.Itoa(d))
		}
		for _, p := range s.MonthlyPeriods {
			switch p {
			case types.MonthlyFirstDay:
				days = append(days, "1")
			case types.MonthlyLastDay:
				days = append(days, "28")
			}
		}
		return fmt.Sprintf("%s %s %s * *", minute, hour, strings.Join(days, ",")), nil
	}
	return "", fmt.Errorf("%w: unknown periodicity %q", ErrInvalidScheduleShape, s.Periodicity)
}

// Controller evaluates the event-driven trigger decision against the
// document store on each control-loop tick.
type Controller struct {
	store  store.Store
	logger zerolog.Logger
}

// NewController returns a schedule controller over the given store.
func NewController(st store.Store, logger zerolog.Logger) *Controller {
	return &Controller{store: st, logger: logger}
}

// EvaluateTrigger queries active engagement deliveries and returns the
// trigger decision.
func (c *Controller) EvaluateTrigger(ctx context.Context) (bool, error) {
	count, err := c.store.GetActiveEngagementDeliveries(ctx)
	if err != nil {
		return false, fmt.Errorf("query active engagement deliveries: %w", err)
	}

	enable := ShouldEnableEventDrivenTrigger(count)
	c.logger.Debug().Int("active_deliveries", count).Bool("enable", enable).Msg("evaluated event-driven trigger")
	return enable, nil
}

package types

// Periodicity selects which branch of a DeliverySchedule is populated.
type Periodicity string

const (
	PeriodicityDaily   Periodicity = "Daily"
	PeriodicityWeekly  Periodicity = "Weekly"
	PeriodicityMonthly Periodicity = "Monthly"
)

// MonthlyPeriod is a named day-of-month shorthand for monthly schedules.
type MonthlyPeriod string

const (
	MonthlyFirstDay MonthlyPeriod = "first"
	MonthlyLastDay  MonthlyPeriod = "last"
)

// DeliverySchedule describes a recurring delivery. Exactly one
// periodicity-specific field set is populated: DaysOfWeek for Weekly,
// DaysOfMonth or MonthlyPeriods for Monthly, neither for Daily. Unpopulated
// optional fields are absent on the wire, never null.
type DeliverySchedule struct {
	Periodicity    Periodicity     `json:"periodicity" bson:"periodicity" firestore:"periodicity"`
	Every          int             `json:"every" bson:"every" firestore:"every"`
	Hour           int             `json:"hour" bson:"hour" firestore:"hour"`
	Minute         int             `json:"minute" bson:"minute" firestore:"minute"`
	Period         string          `json:"period" bson:"period" firestore:"period"`
	DaysOfWeek     []string        `json:"daysOfWeek,omitempty" bson:"daysOfWeek,omitempty" firestore:"daysOfWeek,omitempty"`
	DaysOfMonth    []int           `json:"daysOfMonth,omitempty" bson:"daysOfMonth,omitempty" firestore:"daysOfMonth,omitempty"`
	MonthlyPeriods []MonthlyPeriod `json:"monthlyPeriods,omitempty" bson:"monthlyPeriods,omitempty" firestore:"monthlyPeriods,omitempty"`
}

// Hour24 converts the stored 12-hour clock value and AM/PM period into a
// 24-hour clock hour.
func (s DeliverySchedule) Hour24() int {
	h := s.Hour % 12
	if s.Period == "PM" {
		h += 12
	}
	return h
}

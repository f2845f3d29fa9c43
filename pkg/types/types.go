package types

import (
	"time"
)

// DestinationType identifies the third-party platform a destination points at.
type DestinationType string

const (
	DestinationGoogleAds DestinationType = "google_ads"
	DestinationMetaAds   DestinationType = "meta_ads"
	DestinationBraze     DestinationType = "braze"
	DestinationTwilio    DestinationType = "twilio"
	DestinationQualtrics DestinationType = "qualtrics"
)

// IsAdPlatform reports whether the destination type is an advertising network
// as opposed to a messaging or survey platform.
func (t DestinationType) IsAdPlatform() bool {
	return t == DestinationGoogleAds || t == DestinationMetaAds
}

// ConnectionHealth is the result of the most recent destination health check.
type ConnectionHealth string

const (
	HealthPending   ConnectionHealth = "Pending"
	HealthSucceeded ConnectionHealth = "Succeeded"
	HealthFailed    ConnectionHealth = "Failed"
)

// Status is the canonical delivery status used at every rollup level.
// Job-level statuses are the first five; Active and Inactive only appear at
// the audience/engagement rollup levels.
type Status string

const (
	StatusNotDelivered   Status = "NotDelivered"
	StatusDelivering     Status = "Delivering"
	StatusDelivered      Status = "Delivered"
	StatusError          Status = "Error"
	StatusDeliveryPaused Status = "DeliveryPaused"
	StatusActive         Status = "Active"
	StatusInactive       Status = "Inactive"
)

// Destination is a third-party platform audiences are delivered to.
// Destinations are soft state: they are never physically removed.
type Destination struct {
	ID           string            `json:"id" bson:"_id" firestore:"id"`
	Name         string            `json:"name" bson:"name" firestore:"name"`
	Type         DestinationType   `json:"type" bson:"type" firestore:"type"`
	Auth         map[string]string `json:"auth,omitempty" bson:"auth,omitempty" firestore:"auth,omitempty"`
	Health       ConnectionHealth  `json:"connectionHealth" bson:"connectionHealth" firestore:"connectionHealth"`
	IsAdPlatform bool              `json:"isAdPlatform" bson:"isAdPlatform" firestore:"isAdPlatform"`
	CreatedAt    time.Time         `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// Audience is a filtered segment of users owned by a console user.
type Audience struct {
	ID           string    `json:"id" bson:"_id" firestore:"id"`
	Name         string    `json:"name" bson:"name" firestore:"name"`
	Owner        string    `json:"owner" bson:"owner" firestore:"owner"`
	Filter       string    `json:"filter,omitempty" bson:"filter,omitempty" firestore:"filter,omitempty"`
	Size         int64     `json:"size" bson:"size" firestore:"size"`
	Destinations []string  `json:"destinations,omitempty" bson:"destinations,omitempty" firestore:"destinations,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// DeliveryJob is one attempt to push one audience to one destination.
// Status is the only field mutated after creation; history accumulates as
// additional jobs, never as rewrites of old ones.
type DeliveryJob struct {
	ID            string    `json:"id" bson:"_id" firestore:"id"`
	AudienceID    string    `json:"audienceId" bson:"audienceId" firestore:"audienceId"`
	DestinationID string    `json:"destinationId" bson:"destinationId" firestore:"destinationId"`
	EngagementID  string    `json:"engagementId,omitempty" bson:"engagementId,omitempty" firestore:"engagementId,omitempty"`
	Status        Status    `json:"status" bson:"status" firestore:"status"`
	DeliveredSize int64     `json:"deliveredSize" bson:"deliveredSize" firestore:"deliveredSize"`
	MatchRate     float64   `json:"matchRate" bson:"matchRate" firestore:"matchRate"`
	CreatedBy     string    `json:"createdBy" bson:"createdBy" firestore:"createdBy"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// DeliveryJobRef is the latest-job snapshot nested under a destination
// attachment inside an engagement document.
type DeliveryJobRef struct {
	ID            string    `json:"id" bson:"id" firestore:"id"`
	Status        Status    `json:"status" bson:"status" firestore:"status"`
	DeliveredSize int64     `json:"deliveredSize,omitempty" bson:"deliveredSize,omitempty" firestore:"deliveredSize,omitempty"`
	MatchRate     float64   `json:"matchRate,omitempty" bson:"matchRate,omitempty" firestore:"matchRate,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty" firestore:"updatedAt,omitempty"`
}

// DestinationAttachment binds a destination to an audience within an
// engagement, with an optional recurring schedule.
type DestinationAttachment struct {
	DestinationID   string            `json:"destinationId" bson:"destinationId" firestore:"destinationId"`
	Schedule        *DeliverySchedule `json:"schedule,omitempty" bson:"schedule,omitempty" firestore:"schedule,omitempty"`
	LatestDelivery  *DeliveryJobRef   `json:"latestDelivery,omitempty" bson:"latestDelivery,omitempty" firestore:"latestDelivery,omitempty"`
	ReplaceAudience bool              `json:"replaceAudience" bson:"replaceAudience" firestore:"replaceAudience"`
}

// EngagementAudience is an audience back-reference nested in an engagement.
// The engagement does not own the audience, only its delivery metadata.
type EngagementAudience struct {
	AudienceID  string                  `json:"audienceId" bson:"audienceId" firestore:"audienceId"`
	Attachments []DestinationAttachment `json:"attachments,omitempty" bson:"attachments,omitempty" firestore:"attachments,omitempty"`
}

// EngagementSchedule bounds an engagement's delivery window and optionally
// carries a recurring delivery schedule within that window.
type EngagementSchedule struct {
	StartDate  *time.Time        `json:"startDate,omitempty" bson:"startDate,omitempty" firestore:"startDate,omitempty"`
	EndDate    *time.Time        `json:"endDate,omitempty" bson:"endDate,omitempty" firestore:"endDate,omitempty"`
	Recurrence *DeliverySchedule `json:"recurrence,omitempty" bson:"recurrence,omitempty" firestore:"recurrence,omitempty"`
}

// Engagement is a named bundle of audience-to-destination delivery intents.
type Engagement struct {
	ID        string               `json:"id" bson:"_id" firestore:"id"`
	Name      string               `json:"name" bson:"name" firestore:"name"`
	Inactive  bool                 `json:"inactive" bson:"inactive" firestore:"inactive"`
	Audiences []EngagementAudience `json:"audiences,omitempty" bson:"audiences,omitempty" firestore:"audiences,omitempty"`
	Schedule  *EngagementSchedule  `json:"schedule,omitempty" bson:"schedule,omitempty" firestore:"schedule,omitempty"`
	CreatedAt time.Time            `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// CredentialBundle separates a destination's non-secret parameters from the
// opaque secret references that are resolved at dispatch time. Secret values
// themselves never appear in this structure.
type CredentialBundle struct {
	Plain      map[string]string `json:"plain"`
	SecretRefs map[string]string `json:"secretRefs"`
}

// NotificationSeverity partitions user-visible notifications.
type NotificationSeverity string

const (
	SeverityInfo     NotificationSeverity = "info"
	SeverityCritical NotificationSeverity = "critical"
)

// Notification is a user-visible message about a delivery outcome.
type Notification struct {
	ID            string               `json:"id" bson:"_id" firestore:"id"`
	Username      string               `json:"username" bson:"username" firestore:"username"`
	Severity      NotificationSeverity `json:"severity" bson:"severity" firestore:"severity"`
	Message       string               `json:"message" bson:"message" firestore:"message"`
	AudienceID    string               `json:"audienceId,omitempty" bson:"audienceId,omitempty" firestore:"audienceId,omitempty"`
	DestinationID string               `json:"destinationId,omitempty" bson:"destinationId,omitempty" firestore:"destinationId,omitempty"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// Package delivery orchestrates one audience-to-destination delivery: it
// validates the destination, records the delivery job, resolves credentials,
// dispatches the batch job and tracks the outcome in the document store.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/config"
	"github.com/marketops/delivery-engine/pkg/credentials"
	"github.com/marketops/delivery-engine/pkg/dispatch"
	"github.com/marketops/delivery-engine/pkg/notify"
	"github.com/marketops/delivery-engine/pkg/store"
	"github.com/marketops/delivery-engine/pkg/types"
)

// ErrDestinationNotFound is returned when the destination document is absent.
var ErrDestinationNotFound = errors.New("destination not found")

// ErrDestinationNotHealthy is returned when the destination's last connection
// check did not succeed. The delivery is not retried automatically; the
// caller must re-trigger after fixing the destination.
var ErrDestinationNotHealthy = errors.New("destination not healthy")

// Warning records a tolerated partial failure that did not stop the
// delivery, so callers and tests can observe it even though the call
// succeeded.
type Warning struct {
	Op  string
	Err error
}

// Coordinator drives deliveries. Each Deliver call executes its steps
// strictly in order with no internal parallelism; callers wanting concurrent
// deliveries run concurrent Deliver calls on disjoint
// (audience, destination) pairs.
type Coordinator struct {
	store      store.Store
	resolver   *credentials.Resolver
	dispatcher dispatch.Dispatcher
	notifier   notify.Notifier
	identity   config.IdentityConfig
	limits     dispatch.ResourceLimits
	logger     zerolog.Logger
}

// NewCoordinator wires a delivery coordinator.
func NewCoordinator(st store.Store, resolver *credentials.Resolver, dispatcher dispatch.Dispatcher, notifier notify.Notifier, identity config.IdentityConfig, limits dispatch.ResourceLimits, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:      st,
		resolver:   resolver,
		dispatcher: dispatcher,
		notifier:   notifier,
		identity:   identity,
		limits:     limits,
		logger:     logger,
	}
}

// Deliver pushes one audience to one destination, optionally linked to an
// engagement. Repeated calls create independent delivery-job records; the
// coordinator does not deduplicate, so at-most-one-concurrent-dispatch per
// (audience, destination) is the caller's responsibility.
func (c *Coordinator) Deliver(ctx context.Context, audienceID, destinationID, engagementID, username string) error {
	warning, err := c.deliver(ctx, audienceID, destinationID, engagementID, username)
	if warning != nil {
		c.logger.Warn().Err(warning.Err).
			Str("op", warning.Op).
			Str("audience_id", audienceID).
			Str("destination_id", destinationID).
			Msg("delivery continued past tolerated failure")
	}
	return err
}

func (c *Coordinator) deliver(ctx context.Context, audienceID, destinationID, engagementID, username string) (*Warning, error) {
	logger := c.logger.With().
		Str("audience_id", audienceID).
		Str("destination_id", destinationID).
		Logger()

	dest, err := c.store.GetDestination(ctx, destinationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.notifyCritical(ctx, username, audienceID, destinationID,
				fmt.Sprintf("Delivery failed: destination %s does not exist", destinationID))
			return nil, fmt.Errorf("%w: %s", ErrDestinationNotFound, destinationID)
		}
		c.notifyCritical(ctx, username, audienceID, destinationID,
			fmt.Sprintf("Delivery failed: could not load destination %s", destinationID))
		return nil, fmt.Errorf("load destination %s: %w", destinationID, err)
	}

	if dest.Health != types.HealthSucceeded {
		c.notifyCritical(ctx, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s blocked: connection check is %s", dest.Name, dest.Health))
		return nil, fmt.Errorf("%w: %s (%s)", ErrDestinationNotHealthy, destinationID, dest.Health)
	}

	now := time.Now().UTC()
	job := &types.DeliveryJob{
		ID:            uuid.New().String(),
		AudienceID:    audienceID,
		DestinationID: destinationID,
		EngagementID:  engagementID,
		Status:        types.StatusNotDelivered,
		CreatedBy:     username,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateDeliveryJob(ctx, job); err != nil {
		c.notifyCritical(ctx, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s failed: could not record delivery job", dest.Name))
		return nil, fmt.Errorf("create delivery job: %w", err)
	}
	logger = logger.With().Str("job_id", job.ID).Logger()

	// Engagement linkage is best-effort: some store backends cannot express
	// the nested partial update. The job proceeds either way.
	var warning *Warning
	if engagementID != "" {
		ref := types.DeliveryJobRef{ID: job.ID, Status: job.Status, UpdatedAt: now}
		if err := c.store.AttachDeliveryJobToEngagement(ctx, engagementID, audienceID, destinationID, ref); err != nil {
			warning = &Warning{Op: "attach-engagement", Err: err}
		}
	}

	bundle, err := c.resolver.Resolve(dest.Type, dest.Auth)
	if err != nil {
		return warning, c.failJob(ctx, job.ID, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s failed: credentials could not be resolved", dest.Name),
			fmt.Errorf("resolve credentials: %w", err))
	}

	// Verify every secret reference resolves before anything is handed to
	// the dispatcher; the dispatcher itself receives only the references and
	// the batch runtime injects the values.
	if _, err := c.resolver.ResolveSecrets(ctx, bundle.SecretRefs); err != nil {
		return warning, c.failJob(ctx, job.ID, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s failed: secret lookup failed", dest.Name),
			fmt.Errorf("resolve secrets: %w", err))
	}

	env, secretEnv := c.buildJobEnv(job, dest, bundle)
	jobName := fmt.Sprintf("deliver-%s", job.ID)

	handle, err := c.dispatcher.Register(ctx, jobName, env, secretEnv, c.limits)
	if err != nil {
		return warning, c.failJob(ctx, job.ID, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s failed: batch job registration failed", dest.Name),
			fmt.Errorf("register batch job: %w", err))
	}

	result, err := c.dispatcher.Submit(ctx, handle)
	if err != nil {
		return warning, c.failJob(ctx, job.ID, username, audienceID, destinationID,
			fmt.Sprintf("Delivery to %s failed: batch job submission failed", dest.Name),
			fmt.Errorf("submit batch job: %w", err))
	}

	if err := c.store.SetDeliveryJobStatus(ctx, job.ID, types.StatusDelivering); err != nil {
		return warning, fmt.Errorf("mark delivery job delivering: %w", err)
	}

	logger.Info().Str("submission_id", result.SubmissionID).Msg("delivery dispatched")

	n := notify.New(username, types.SeverityInfo,
		fmt.Sprintf("Delivery of audience %s to %s started", audienceID, dest.Name),
		audienceID, destinationID)
	if err := c.notifier.Notify(ctx, n); err != nil {
		logger.Warn().Err(err).Msg("success notification failed")
	}
	return warning, nil
}

// failJob marks the job Error, emits a critical notification and returns the
// delivery error. Status-update failures are logged, not returned: the
// original failure is the one the caller needs.
func (c *Coordinator) failJob(ctx context.Context, jobID, username, audienceID, destinationID, message string, cause error) error {
	if err := c.store.SetDeliveryJobStatus(ctx, jobID, types.StatusError); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("could not mark delivery job as errored")
	}
	c.notifyCritical(ctx, username, audienceID, destinationID, message)
	return cause
}

func (c *Coordinator) notifyCritical(ctx context.Context, username, audienceID, destinationID, message string) {
	n := notify.New(username, types.SeverityCritical, message, audienceID, destinationID)
	if err := c.notifier.Notify(ctx, n); err != nil {
		c.logger.Error().Err(err).Str("username", username).Msg("critical notification failed")
	}
}

// buildJobEnv merges destination credentials with the process-wide identity
// parameters into the environment and secret maps for the dispatched job.
func (c *Coordinator) buildJobEnv(job *types.DeliveryJob, dest *types.Destination, bundle types.CredentialBundle) (env, secretEnv map[string]string) {
	env = map[string]string{
		"DELIVERY_JOB_ID":  job.ID,
		"AUDIENCE_ID":      job.AudienceID,
		"DESTINATION_ID":   dest.ID,
		"DESTINATION_TYPE": string(dest.Type),
	}
	if job.EngagementID != "" {
		env["ENGAGEMENT_ID"] = job.EngagementID
	}
	if c.identity.AuthIssuer != "" {
		env["AUTH_ISSUER"] = c.identity.AuthIssuer
	}
	if c.identity.TestAccountID != "" {
		env["TEST_ACCOUNT_ID"] = c.identity.TestAccountID
	}
	for field, value := range bundle.Plain {
		env[envName(field)] = value
	}

	secretEnv = make(map[string]string, len(bundle.SecretRefs))
	for field, ref := range bundle.SecretRefs {
		secretEnv[envName(field)] = ref
	}
	return env, secretEnv
}

func envName(field string) string {
	return strings.ToUpper(strings.ReplaceAll(field, "-", "_"))
}

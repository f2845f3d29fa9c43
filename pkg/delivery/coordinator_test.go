package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/config"
	"github.com/marketops/delivery-engine/pkg/credentials"
	"github.com/marketops/delivery-engine/pkg/dispatch"
	"github.com/marketops/delivery-engine/pkg/secrets"
	"github.com/marketops/delivery-engine/pkg/store"
	"github.com/marketops/delivery-engine/pkg/types"
)

type fakeStore struct {
	destinations map[string]*types.Destination
	jobs         map[string]*types.DeliveryJob
	statuses     map[string][]types.Status
	attachErr    error
	attachCalls  int
	notifCount   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		destinations: make(map[string]*types.Destination),
		jobs:         make(map[string]*types.DeliveryJob),
		statuses:     make(map[string][]types.Status),
	}
}

func (f *fakeStore) GetDestination(_ context.Context, id string) (*types.Destination, error) {
	d, ok := f.destinations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) CreateDeliveryJob(_ context.Context, job *types.DeliveryJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeStore) SetDeliveryJobStatus(_ context.Context, jobID string, st types.Status) error {
	if _, ok := f.jobs[jobID]; !ok {
		return store.ErrNotFound
	}
	f.jobs[jobID].Status = st
	f.statuses[jobID] = append(f.statuses[jobID], st)
	return nil
}

func (f *fakeStore) AttachDeliveryJobToEngagement(_ context.Context, _, _, _ string, _ types.DeliveryJobRef) error {
	f.attachCalls++
	return f.attachErr
}

func (f *fakeStore) GetActiveEngagementDeliveries(_ context.Context) (int, error) {
	return 0, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, _ *types.Notification) error {
	f.notifCount++
	return nil
}

type fakeDispatcher struct {
	registerCalls int
	submitCalls   int
	registerErr   error
	submitErr     error
	lastEnv       map[string]string
	lastSecretEnv map[string]string
}

func (f *fakeDispatcher) Register(_ context.Context, jobName string, env, secretEnv map[string]string, _ dispatch.ResourceLimits) (dispatch.JobHandle, error) {
	f.registerCalls++
	f.lastEnv = env
	f.lastSecretEnv = secretEnv
	if f.registerErr != nil {
		return dispatch.JobHandle{}, f.registerErr
	}
	return dispatch.JobHandle{Provider: "fake", Name: jobName, Reference: "ref/" + jobName}, nil
}

func (f *fakeDispatcher) Submit(_ context.Context, _ dispatch.JobHandle) (dispatch.SubmitResult, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return dispatch.SubmitResult{}, f.submitErr
	}
	return dispatch.SubmitResult{SubmissionID: "sub-1"}, nil
}

type fakeNotifier struct {
	sent []types.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n types.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) severities() []types.NotificationSeverity {
	out := make([]types.NotificationSeverity, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Severity)
	}
	return out
}

func healthyDestination() *types.Destination {
	return &types.Destination{
		ID:     "dest-1",
		Name:   "Braze Production",
		Type:   types.DestinationBraze,
		Health: types.HealthSucceeded,
		Auth: map[string]string{
			"rest_endpoint": "https://rest.iad-01.braze.com",
			"api_key":       "dest-1_api_key",
		},
	}
}

func testHarness(t *testing.T) (*fakeStore, *fakeDispatcher, *fakeNotifier, *Coordinator) {
	t.Helper()

	st := newFakeStore()
	st.destinations["dest-1"] = healthyDestination()

	mem := secrets.NewMemory()
	if err := mem.Put(context.Background(), "dest-1_api_key", "secret-value", false); err != nil {
		t.Fatalf("seed secret: %v", err)
	}

	disp := &fakeDispatcher{}
	notif := &fakeNotifier{}
	coord := NewCoordinator(st, credentials.NewResolver(mem), disp, notif,
		config.IdentityConfig{AuthIssuer: "https://auth.example.com", TestAccountID: "test-acct"},
		dispatch.ResourceLimits{CPU: "1000m", Memory: "512Mi", TimeoutMinutes: 60},
		zerolog.Nop())
	return st, disp, notif, coord
}

func singleJob(t *testing.T, st *fakeStore) *types.DeliveryJob {
	t.Helper()
	if len(st.jobs) != 1 {
		t.Fatalf("jobs created = %d, want 1", len(st.jobs))
	}
	for _, job := range st.jobs {
		return job
	}
	return nil
}

func TestDeliverSuccess(t *testing.T) {
	st, disp, notif, coord := testHarness(t)

	if err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice"); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}

	job := singleJob(t, st)
	if job.Status != types.StatusDelivering {
		t.Errorf("job status = %s, want Delivering", job.Status)
	}
	if disp.registerCalls != 1 || disp.submitCalls != 1 {
		t.Errorf("register/submit calls = %d/%d, want 1/1", disp.registerCalls, disp.submitCalls)
	}

	if disp.lastEnv["AUDIENCE_ID"] != "aud-1" || disp.lastEnv["AUTH_ISSUER"] != "https://auth.example.com" {
		t.Errorf("job env missing identity/audience parameters: %v", disp.lastEnv)
	}
	if disp.lastEnv["REST_ENDPOINT"] != "https://rest.iad-01.braze.com" {
		t.Errorf("plain credential not merged into env: %v", disp.lastEnv)
	}
	if disp.lastSecretEnv["API_KEY"] != "dest-1_api_key" {
		t.Errorf("secret env must carry the reference, got %v", disp.lastSecretEnv)
	}
	if disp.lastEnv["API_KEY"] != "" {
		t.Error("secret value or reference leaked into the plain env")
	}

	if len(notif.sent) != 1 || notif.sent[0].Severity != types.SeverityInfo {
		t.Errorf("notifications = %v, want one info", notif.severities())
	}
}

func TestDeliverDestinationNotFound(t *testing.T) {
	st, disp, notif, coord := testHarness(t)

	err := coord.Deliver(context.Background(), "aud-1", "dest-missing", "", "alice")
	if !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("err = %v, want ErrDestinationNotFound", err)
	}
	if len(st.jobs) != 0 {
		t.Error("no delivery job may be created for a missing destination")
	}
	if disp.registerCalls != 0 || disp.submitCalls != 0 {
		t.Error("dispatcher must not be touched for a missing destination")
	}
	if len(notif.sent) != 1 || notif.sent[0].Severity != types.SeverityCritical {
		t.Errorf("notifications = %v, want one critical", notif.severities())
	}
}

func TestDeliverUnhealthyDestination(t *testing.T) {
	st, disp, notif, coord := testHarness(t)
	st.destinations["dest-1"].Health = types.HealthFailed

	err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice")
	if !errors.Is(err, ErrDestinationNotHealthy) {
		t.Fatalf("err = %v, want ErrDestinationNotHealthy", err)
	}
	if len(st.jobs) != 0 {
		t.Error("no delivery job may be created for an unhealthy destination")
	}
	if disp.submitCalls != 0 {
		t.Error("no submit may occur for an unhealthy destination")
	}
	if len(notif.sent) != 1 || notif.sent[0].Severity != types.SeverityCritical {
		t.Errorf("notifications = %v, want one critical", notif.severities())
	}
}

func TestDeliverRegisterFailure(t *testing.T) {
	st, disp, _, coord := testHarness(t)
	disp.registerErr = errors.New("quota exceeded")

	err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice")
	if err == nil {
		t.Fatal("expected error when register fails")
	}

	job := singleJob(t, st)
	if job.Status != types.StatusError {
		t.Errorf("job status = %s, want Error", job.Status)
	}
	if disp.submitCalls != 0 {
		t.Fatalf("submit calls = %d, want 0 after register failure", disp.submitCalls)
	}
}

func TestDeliverSubmitFailure(t *testing.T) {
	st, disp, notif, coord := testHarness(t)
	disp.submitErr = errors.New("queue unavailable")

	err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice")
	if err == nil {
		t.Fatal("expected error when submit fails")
	}

	job := singleJob(t, st)
	if job.Status != types.StatusError {
		t.Errorf("job status = %s, want Error", job.Status)
	}
	if len(notif.sent) != 1 || notif.sent[0].Severity != types.SeverityCritical {
		t.Errorf("notifications = %v, want one critical", notif.severities())
	}
}

func TestDeliverEngagementLinkageWarningTolerated(t *testing.T) {
	st, disp, _, coord := testHarness(t)
	st.attachErr = store.ErrPartialUpdateUnsupported

	warning, err := coord.deliver(context.Background(), "aud-1", "dest-1", "eng-1", "alice")
	if err != nil {
		t.Fatalf("deliver error: %v", err)
	}
	if warning == nil {
		t.Fatal("expected a warning when engagement linkage fails")
	}
	if warning.Op != "attach-engagement" {
		t.Errorf("warning op = %q", warning.Op)
	}
	if !errors.Is(warning.Err, store.ErrPartialUpdateUnsupported) {
		t.Errorf("warning err = %v", warning.Err)
	}

	// The delivery itself still completed.
	if singleJob(t, st).Status != types.StatusDelivering {
		t.Error("job must still reach Delivering despite the linkage warning")
	}
	if disp.submitCalls != 1 {
		t.Error("submit must still happen despite the linkage warning")
	}
}

func TestDeliverAttachesEngagement(t *testing.T) {
	st, _, _, coord := testHarness(t)

	if err := coord.Deliver(context.Background(), "aud-1", "dest-1", "eng-1", "alice"); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if st.attachCalls != 1 {
		t.Fatalf("attach calls = %d, want 1", st.attachCalls)
	}
	if singleJob(t, st).EngagementID != "eng-1" {
		t.Error("job must be linked to the engagement")
	}
}

func TestDeliverSecretLookupFailureStopsDispatch(t *testing.T) {
	st, disp, _, coord := testHarness(t)
	// Point the destination at a reference with no stored value.
	st.destinations["dest-1"].Auth["api_key"] = "dest-1_unknown"

	err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice")
	if err == nil {
		t.Fatal("expected error when a secret reference cannot be resolved")
	}
	if disp.registerCalls != 0 {
		t.Error("no partial credential set may reach the dispatcher")
	}
	if singleJob(t, st).Status != types.StatusError {
		t.Error("job must end in Error when secrets cannot be resolved")
	}
}

func TestDeliverIndependentJobRecords(t *testing.T) {
	st, _, _, coord := testHarness(t)

	for i := 0; i < 3; i++ {
		if err := coord.Deliver(context.Background(), "aud-1", "dest-1", "", "alice"); err != nil {
			t.Fatalf("Deliver #%d error: %v", i, err)
		}
	}
	if len(st.jobs) != 3 {
		t.Fatalf("jobs = %d, want 3 independent records", len(st.jobs))
	}
}

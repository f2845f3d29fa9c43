package dispatch

import (
	"context"
	"fmt"
	"time"

	run "cloud.google.com/go/run/apiv2"
	runpb "cloud.google.com/go/run/apiv2/runpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
)

// CloudRunDispatcher runs delivery jobs as Cloud Run jobs. Register creates
// the job definition and Submit starts an execution without waiting for it to
// finish.
type CloudRunDispatcher struct {
	client    *run.JobsClient
	projectID string
	region    string
	image     string
	logger    zerolog.Logger
}

// NewCloudRunDispatcher creates a Cloud Run Jobs dispatcher.
func NewCloudRunDispatcher(ctx context.Context, projectID, region, image string, logger zerolog.Logger, opts ...option.ClientOption) (*CloudRunDispatcher, error) {
	client, err := run.NewJobsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloud run jobs client: %w", err)
	}
	return &CloudRunDispatcher{
		client:    client,
		projectID: projectID,
		region:    region,
		image:     image,
		logger:    logger,
	}, nil
}

// Close closes the underlying client.
func (d *CloudRunDispatcher) Close() error {
	return d.client.Close()
}

// Register implements Dispatcher. Plain parameters become container env vars;
// secret references become env vars sourced from Secret Manager so the value
// never passes through this process.
func (d *CloudRunDispatcher) Register(ctx context.Context, jobName string, env, secretEnv map[string]string, limits ResourceLimits) (JobHandle, error) {
	envVars := make([]*runpb.EnvVar, 0, len(env)+len(secretEnv))
	for key, value := range env {
		envVars = append(envVars, &runpb.EnvVar{
			Name:   key,
			Values: &runpb.EnvVar_Value{Value: value},
		})
	}
	for key, ref := range secretEnv {
		envVars = append(envVars, &runpb.EnvVar{
			Name: key,
			Values: &runpb.EnvVar_ValueSource{
				ValueSource: &runpb.EnvVarSource{
					SecretKeyRef: &runpb.SecretKeySelector{
						Secret:  ref,
						Version: "latest",
					},
				},
			},
		})
	}

	req := &runpb.CreateJobRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s", d.projectID, d.region),
		JobId:  jobName,
		Job: &runpb.Job{
			Template: &runpb.ExecutionTemplate{
				TaskCount:   1,
				Parallelism: 1,
				Template: &runpb.TaskTemplate{
					Containers: []*runpb.Container{
						{
							Image: d.image,
							Env:   envVars,
							Resources: &runpb.ResourceRequirements{
								Limits: map[string]string{
									"cpu":    limits.CPU,
									"memory": limits.Memory,
								},
							},
						},
					},
					Timeout: durationpb.New(time.Duration(limits.TimeoutMinutes) * time.Minute),
				},
			},
		},
	}

	op, err := d.client.CreateJob(ctx, req)
	if err != nil {
		return JobHandle{}, fmt.Errorf("create cloud run job %s: %w", jobName, err)
	}

	job, err := op.Wait(ctx)
	if err != nil {
		return JobHandle{}, fmt.Errorf("wait for cloud run job %s: %w", jobName, err)
	}

	d.logger.Info().Str("job", job.Name).Msg("registered cloud run job")
	return JobHandle{
		Provider:  "cloudrun",
		Name:      jobName,
		Reference: job.Name,
	}, nil
}

// Submit implements Dispatcher. The execution operation name is the
// submission id; execution completion is tracked by the job itself, not here.
func (d *CloudRunDispatcher) Submit(ctx context.Context, handle JobHandle) (SubmitResult, error) {
	op, err := d.client.RunJob(ctx, &runpb.RunJobRequest{Name: handle.Reference})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("run cloud run job %s: %w", handle.Name, err)
	}

	d.logger.Info().Str("job", handle.Name).Str("operation", op.Name()).Msg("submitted cloud run job")
	return SubmitResult{
		SubmissionID: op.Name(),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

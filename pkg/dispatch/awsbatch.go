package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/rs/zerolog"
)

// AWSBatchDispatcher runs delivery jobs on AWS Batch. Register creates a job
// definition revision and Submit enqueues a job onto the configured queue.
type AWSBatchDispatcher struct {
	client   *batch.Client
	jobQueue string
	image    string
	logger   zerolog.Logger
}

// NewAWSBatchDispatcher creates an AWS Batch dispatcher.
func NewAWSBatchDispatcher(cfg aws.Config, jobQueue, image string, logger zerolog.Logger) *AWSBatchDispatcher {
	return &AWSBatchDispatcher{
		client:   batch.NewFromConfig(cfg),
		jobQueue: jobQueue,
		image:    image,
		logger:   logger,
	}
}

// Register implements Dispatcher. Secret references become Batch container
// secrets resolved by the compute environment at task start.
func (d *AWSBatchDispatcher) Register(ctx context.Context, jobName string, env, secretEnv map[string]string, limits ResourceLimits) (JobHandle, error) {
	envVars := make([]batchtypes.KeyValuePair, 0, len(env))
	for key, value := range env {
		envVars = append(envVars, batchtypes.KeyValuePair{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}

	containerSecrets := make([]batchtypes.Secret, 0, len(secretEnv))
	for key, ref := range secretEnv {
		containerSecrets = append(containerSecrets, batchtypes.Secret{
			Name:      aws.String(key),
			ValueFrom: aws.String(ref),
		})
	}

	out, err := d.client.RegisterJobDefinition(ctx, &batch.RegisterJobDefinitionInput{
		JobDefinitionName: aws.String(jobName),
		Type:              batchtypes.JobDefinitionTypeContainer,
		ContainerProperties: &batchtypes.ContainerProperties{
			Image:       aws.String(d.image),
			Environment: envVars,
			Secrets:     containerSecrets,
			ResourceRequirements: []batchtypes.ResourceRequirement{
				{Type: batchtypes.ResourceTypeVcpu, Value: aws.String(vcpusFromCPU(limits.CPU))},
				{Type: batchtypes.ResourceTypeMemory, Value: aws.String(megabytesFromMemory(limits.Memory))},
			},
		},
		Timeout: &batchtypes.JobTimeout{
			AttemptDurationSeconds: aws.Int32(int32(limits.TimeoutMinutes) * 60),
		},
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("register batch job definition %s: %w", jobName, err)
	}

	d.logger.Info().Str("job", jobName).Str("arn", aws.ToString(out.JobDefinitionArn)).Msg("registered batch job definition")
	return JobHandle{
		Provider:  "awsbatch",
		Name:      jobName,
		Reference: aws.ToString(out.JobDefinitionArn),
	}, nil
}

// Submit implements Dispatcher.
func (d *AWSBatchDispatcher) Submit(ctx context.Context, handle JobHandle) (SubmitResult, error) {
	out, err := d.client.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(handle.Name),
		JobQueue:      aws.String(d.jobQueue),
		JobDefinition: aws.String(handle.Reference),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit batch job %s: %w", handle.Name, err)
	}

	d.logger.Info().Str("job", handle.Name).Str("job_id", aws.ToString(out.JobId)).Msg("submitted batch job")
	return SubmitResult{
		SubmissionID: aws.ToString(out.JobId),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// vcpusFromCPU converts a Kubernetes-style CPU limit ("1000m") to the whole
// vCPU count Batch expects. Fractional values round up to one.
func vcpusFromCPU(cpu string) string {
	if strings.HasSuffix(cpu, "m") {
		if milli, err := strconv.Atoi(strings.TrimSuffix(cpu, "m")); err == nil {
			v := milli / 1000
			if v < 1 {
				v = 1
			}
			return strconv.Itoa(v)
		}
	}
	if _, err := strconv.Atoi(cpu); err == nil {
		return cpu
	}
	return "1"
}

// megabytesFromMemory converts a Kubernetes-style memory limit ("512Mi",
// "2Gi") to the MiB figure Batch expects.
func megabytesFromMemory(mem string) string {
	switch {
	case strings.HasSuffix(mem, "Gi"):
		if g, err := strconv.Atoi(strings.TrimSuffix(mem, "Gi")); err == nil {
			return strconv.Itoa(g * 1024)
		}
	case strings.HasSuffix(mem, "Mi"):
		if m, err := strconv.Atoi(strings.TrimSuffix(mem, "Mi")); err == nil {
			return strconv.Itoa(m)
		}
	}
	if _, err := strconv.Atoi(mem); err == nil {
		return mem
	}
	return "512"
}

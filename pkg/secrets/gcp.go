package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SecretManager implements Store on Google Secret Manager. Each secret name
// maps to one managed secret; every Put adds a new version and Get always
// reads the latest.
type SecretManager struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManager creates a Secret Manager backed store for the project.
func NewSecretManager(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManager{client: client, projectID: projectID}, nil
}

// Close closes the underlying client.
func (s *SecretManager) Close() error {
	return s.client.Close()
}

// Put implements Store.
func (s *SecretManager) Put(ctx context.Context, name, value string, overwrite bool) error {
	parent := fmt.Sprintf("projects/%s", s.projectID)
	secretName := fmt.Sprintf("%s/secrets/%s", parent, name)

	_, err := s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   parent,
		SecretId: name,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create secret %s: %w", name, err)
		}
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrSecretExists, name)
		}
	}

	_, err = s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: secretName,
		Payload: &secretmanagerpb.SecretPayload{
			Data: []byte(value),
		},
	})
	if err != nil {
		return fmt.Errorf("add secret version %s: %w", name, err)
	}
	return nil
}

// Get implements Store.
func (s *SecretManager) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return string(resp.Payload.Data), nil
}

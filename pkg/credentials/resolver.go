// Package credentials maps destination authentication fields into plain
// parameters and secret references, and moves secret values in and out of the
// secret store. No secret value ever travels further than this package and
// the dispatcher environment built from it.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/marketops/delivery-engine/pkg/secrets"
	"github.com/marketops/delivery-engine/pkg/types"
)

// ErrUnsupportedDestinationType is returned when a destination type has no
// field-classification table.
var ErrUnsupportedDestinationType = errors.New("unsupported destination type")

// ErrMissingAuthField is returned when stored auth lacks a field the
// destination type requires.
var ErrMissingAuthField = errors.New("missing auth field")

// ErrSecretStoreUnavailable wraps secret-store write failures.
var ErrSecretStoreUnavailable = errors.New("secret store unavailable")

// classification fixes, per destination type, which auth fields are copied
// verbatim and which are held in the secret store behind a reference.
type classification struct {
	Plain  []string
	Secret []string
}

var classificationTables = map[types.DestinationType]classification{
	types.DestinationGoogleAds: {
		Plain:  []string{"client_id", "login_customer_id"},
		Secret: []string{"client_secret", "developer_token", "refresh_token"},
	},
	types.DestinationMetaAds: {
		Plain:  []string{"ad_account_id", "app_id"},
		Secret: []string{"access_token", "app_secret"},
	},
	types.DestinationBraze: {
		Plain:  []string{"rest_endpoint"},
		Secret: []string{"api_key"},
	},
	types.DestinationTwilio: {
		Plain:  []string{"account_sid", "messaging_service_sid"},
		Secret: []string{"auth_token"},
	},
	types.DestinationQualtrics: {
		Plain:  []string{"datacenter"},
		Secret: []string{"api_token"},
	},
}

// Resolver classifies destination auth fields and talks to the secret store.
type Resolver struct {
	store secrets.Store
}

// NewResolver returns a Resolver backed by the given secret store.
func NewResolver(store secrets.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve splits storedAuth into the plain-parameter map and the
// secret-reference map for the destination type. Secret-classified fields are
// expected to hold references produced by StoreSecrets, never raw values.
func (r *Resolver) Resolve(destType types.DestinationType, storedAuth map[string]string) (types.CredentialBundle, error) {
	table, ok := classificationTables[destType]
	if !ok {
		return types.CredentialBundle{}, fmt.Errorf("%w: %s", ErrUnsupportedDestinationType, destType)
	}

	bundle := types.CredentialBundle{
		Plain:      make(map[string]string, len(table.Plain)),
		SecretRefs: make(map[string]string, len(table.Secret)),
	}
	for _, field := range table.Plain {
		v, ok := storedAuth[field]
		if !ok || v == "" {
			return types.CredentialBundle{}, fmt.Errorf("%w: %s (%s)", ErrMissingAuthField, field, destType)
		}
		bundle.Plain[field] = v
	}
	for _, field := range table.Secret {
		ref, ok := storedAuth[field]
		if !ok || ref == "" {
			return types.CredentialBundle{}, fmt.Errorf("%w: %s (%s)", ErrMissingAuthField, field, destType)
		}
		bundle.SecretRefs[field] = ref
	}
	return bundle, nil
}

// StoreSecrets writes the secret-classified fields of authDetails to the
// secret store under deterministic names and returns the reference map.
// Presence of every required field is verified before the first write, so a
// malformed request never leaves a partial secret set behind; store failures
// surface as ErrSecretStoreUnavailable and the caller treats the whole call
// as one logical operation.
func (r *Resolver) StoreSecrets(ctx context.Context, destinationID string, destType types.DestinationType, authDetails map[string]string, overwrite bool) (map[string]string, error) {
	table, ok := classificationTables[destType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDestinationType, destType)
	}

	for _, field := range table.Secret {
		if v, ok := authDetails[field]; !ok || v == "" {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissingAuthField, field, destType)
		}
	}

	refs := make(map[string]string, len(table.Secret))
	fields := append([]string(nil), table.Secret...)
	sort.Strings(fields)
	for _, field := range fields {
		name := SecretName(destinationID, field)
		if err := r.store.Put(ctx, name, authDetails[field], overwrite); err != nil {
			return nil, fmt.Errorf("%w: put %s: %v", ErrSecretStoreUnavailable, name, err)
		}
		refs[field] = name
	}
	return refs, nil
}

// ResolveSecrets looks up every reference in refs and returns the value map.
// A single failed lookup fails the whole resolution; partial credential sets
// are never returned.
func (r *Resolver) ResolveSecrets(ctx context.Context, refs map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(refs))
	for field, ref := range refs {
		v, err := r.store.Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", ref, err)
		}
		values[field] = v
	}
	return values, nil
}

// SecretName is the deterministic secret-store name for a destination auth
// field.
func SecretName(destinationID, field string) string {
	return fmt.Sprintf("%s_%s", destinationID, field)
}

// SupportedTypes lists the destination types with a classification table.
func SupportedTypes() []types.DestinationType {
	out := make([]types.DestinationType, 0, len(classificationTables))
	for t := range classificationTables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Classification returns the plain and secret field sets for a destination
// type, in table order.
func Classification(destType types.DestinationType) (plain, secret []string, err error) {
	table, ok := classificationTables[destType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedDestinationType, destType)
	}
	return append([]string(nil), table.Plain...), append([]string(nil), table.Secret...), nil
}

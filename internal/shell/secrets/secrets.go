// Package secrets fetches the Firestore service-account credential from
// Google Secret Manager at startup.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSecretNotFound is returned when the secret or version does not exist.
	ErrSecretNotFound = errors.New("secret or version not found")

	// ErrPermissionDenied is returned when the caller lacks the Secret
	// Manager Secret Accessor role.
	ErrPermissionDenied = errors.New("permission denied accessing secret")

	// ErrInvalidPayload is returned when the secret payload is not valid
	// JSON. Service-account keys are always JSON documents.
	ErrInvalidPayload = errors.New("secret payload is not valid JSON")
)

// =============================================================================
// Accessor
// =============================================================================

// Accessor fetches secret payloads. The interface exists so the server wiring
// can be tested without a live Secret Manager.
type Accessor interface {
	ServiceAccountJSON(ctx context.Context) ([]byte, error)
	Close() error
}

// Config identifies the secret version to fetch.
type Config struct {
	ProjectID string
	SecretID  string
	Version   string // Defaults to "latest".
}

// resourceName returns the full Secret Manager version resource name.
func (c Config) resourceName() string {
	version := c.Version
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", c.ProjectID, c.SecretID, version)
}

// Client implements Accessor against the real Secret Manager API.
type Client struct {
	client *secretmanager.Client
	config Config
	logger *slog.Logger
}

// NewClient creates a Secret Manager client.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
		logger: logger.With("component", "secrets"),
	}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ServiceAccountJSON fetches the service-account key and validates that it
// parses as JSON before handing it to the Firestore client.
func (c *Client) ServiceAccountJSON(ctx context.Context) ([]byte, error) {
	name := c.config.resourceName()
	c.logger.Info("accessing secret version", "name", name)

	resp, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound:
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		case codes.PermissionDenied:
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, name)
		}
		return nil, fmt.Errorf("access secret version %s: %w", name, err)
	}

	payload := resp.GetPayload().GetData()
	if err := ValidateServiceAccountJSON(payload); err != nil {
		return nil, err
	}

	c.logger.Info("secret payload retrieved")
	return payload, nil
}

// ValidateServiceAccountJSON checks the payload is a JSON object. It does not
// verify individual key fields; the Firestore client rejects malformed keys
// with a clearer error than we could produce here.
func ValidateServiceAccountJSON(payload []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

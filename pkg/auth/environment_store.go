package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvSessionID = "IGHARVEST_SESSION_ID"
	EnvCSRFToken = "IGHARVEST_CSRF_TOKEN"
	EnvDSUserID  = "IGHARVEST_DS_USER_ID"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only and answers for any label.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(label string) (*Credentials, error) {
	sessionID := os.Getenv(EnvSessionID)
	if sessionID == "" {
		return nil, ErrCredentialsNotFound
	}
	if label == "" {
		label = DefaultLabel
	}

	return &Credentials{
		Label:        label,
		SessionID:    sessionID,
		CSRFToken:    os.Getenv(EnvCSRFToken),
		DSUserID:     os.Getenv(EnvDSUserID),
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential set if the environment holds one
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv(EnvSessionID) != ""
}

// Package auth stores the upstream session cookies used by the worker.
//
// Credentials are looked up through a chain of stores: the system keyring,
// an encrypted file under the user's config directory and finally the
// IGHARVEST_* environment variables.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"igharvest/pkg/session"
)

// DefaultLabel names the credential set used when none is given
const DefaultLabel = "default"

// Credentials is one labelled set of upstream session cookies
type Credentials struct {
	Label        string    `json:"label"`
	SessionID    string    `json:"session_id"`
	CSRFToken    string    `json:"csrf_token,omitempty"`
	DSUserID     string    `json:"ds_user_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Session returns the cookies in the form the session manager consumes
func (c *Credentials) Session() session.Credentials {
	return session.Credentials{
		SessionID: c.SessionID,
		CSRFToken: c.CSRFToken,
		DSUserID:  c.DSUserID,
	}
}

// CredentialStore defines the interface for credential storage backends
type CredentialStore interface {
	Store(creds *Credentials) error
	Retrieve(label string) (*Credentials, error)
	List() ([]*Credentials, error)
	Delete(label string) error
	Exists(label string) bool
}

// Manager handles credential storage with fallback options
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the keyring, encrypted file and environment chain. An
// empty dir selects ConfigDir. The keyring is skipped when the platform has
// none.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return nil, err
		}
	}

	var stores []CredentialStore
	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential file: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over an explicit store chain
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials in the first store that accepts them
func (m *Manager) Store(creds *Credentials) error {
	if creds == nil || creds.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidCredentials)
	}
	if creds.Label == "" {
		creds.Label = DefaultLabel
	}
	creds.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(label string) (*Credentials, error) {
	if label == "" {
		label = DefaultLabel
	}
	for _, store := range m.stores {
		if creds, err := store.Retrieve(label); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, label)
}

// Resolve fills the cookies missing from configured with the stored set
// for label. Configured values always win; a configured session id makes
// the lookup unnecessary.
func (m *Manager) Resolve(label string, configured session.Credentials) (session.Credentials, error) {
	if configured.Valid() {
		return configured, nil
	}
	creds, err := m.Retrieve(label)
	if err != nil {
		return session.Credentials{}, err
	}

	out := creds.Session()
	if configured.CSRFToken != "" {
		out.CSRFToken = configured.CSRFToken
	}
	if configured.DSUserID != "" {
		out.DSUserID = configured.DSUserID
	}
	return out, nil
}

// List returns all stored credential sets, newest version per label
func (m *Manager) List() ([]*Credentials, error) {
	byLabel := make(map[string]*Credentials)

	for _, store := range m.stores {
		found, err := store.List()
		if err != nil {
			continue
		}
		for _, c := range found {
			if existing, ok := byLabel[c.Label]; !ok || c.LastModified.After(existing.LastModified) {
				byLabel[c.Label] = c
			}
		}
	}

	result := make([]*Credentials, 0, len(byLabel))
	for _, c := range byLabel {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Label < result[j].Label })
	return result, nil
}

// Delete removes credentials from every store holding them
func (m *Manager) Delete(label string) error {
	if label == "" {
		label = DefaultLabel
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(label); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, label)
	}
	return nil
}

// ConfigDir returns the per-user igharvest configuration directory,
// creating it when missing
func ConfigDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igharvest")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igharvest")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "igharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igharvest")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Sanitize returns a copy with the cookie values masked
func Sanitize(creds *Credentials) *Credentials {
	if creds == nil {
		return nil
	}
	return &Credentials{
		Label:        creds.Label,
		SessionID:    maskString(creds.SessionID),
		CSRFToken:    maskString(creds.CSRFToken),
		DSUserID:     creds.DSUserID,
		LastModified: creds.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

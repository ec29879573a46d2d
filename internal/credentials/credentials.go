package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// Credentials holds short-lived access material for the object store.
type Credentials struct {
	AccessToken string
	ProjectID   string
	RegionID    string

	// ConfigError is set when the credential source is not configured.
	ConfigError bool
	// LoginError is set when the source is configured but nobody is logged in.
	LoginError bool

	// Signing material for S3-compatible stores. When present, AccessToken
	// is sent as the session token.
	AccessKeyID     string
	SecretAccessKey string
}

// NewCredentials creates a new credentials instance
func NewCredentials() *Credentials {
	return &Credentials{}
}

// LoadFromPasswdFile loads credentials from a passwd file in format ACCESS_KEY:SECRET_KEY
func (c *Credentials) LoadFromPasswdFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read passwd file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	parts := strings.Split(content, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid passwd file format, expected ACCESS_KEY:SECRET_KEY")
	}

	c.AccessKeyID = strings.TrimSpace(parts[0])
	c.SecretAccessKey = strings.TrimSpace(parts[1])

	return nil
}

// LoadFromEnvironment loads credentials from environment variables
func (c *Credentials) LoadFromEnvironment() error {
	token := os.Getenv("BUCKETFS_ACCESS_TOKEN")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if token == "" && (accessKey == "" || secretKey == "") {
		return fmt.Errorf("BUCKETFS_ACCESS_TOKEN or AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}

	c.AccessToken = token
	if sessionToken := os.Getenv("AWS_SESSION_TOKEN"); sessionToken != "" {
		c.AccessToken = sessionToken
	}
	c.AccessKeyID = accessKey
	c.SecretAccessKey = secretKey
	c.ProjectID = os.Getenv("BUCKETFS_PROJECT_ID")
	c.RegionID = os.Getenv("AWS_REGION")

	return nil
}

// HasKeyPair reports whether S3 signing material is present.
func (c *Credentials) HasKeyPair() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// IsValid checks if credentials carry usable access material
func (c *Credentials) IsValid() bool {
	return c.AccessToken != "" || c.HasKeyPair()
}

// Usable reports whether the credentials may be used to authorize a call.
func (c *Credentials) Usable() bool {
	return c != nil && !c.ConfigError && !c.LoginError && c.IsValid()
}

// Check returns a NotAuthenticated error describing why c cannot be used,
// or nil when it can.
func (c *Credentials) Check() error {
	switch {
	case c == nil:
		return fserr.New(fserr.NotAuthenticated, "credentials", "", "no credentials available")
	case c.ConfigError:
		return fserr.New(fserr.NotAuthenticated, "credentials", "", "credentials are not configured")
	case c.LoginError:
		return fserr.New(fserr.NotAuthenticated, "credentials", "", "not logged in")
	case !c.IsValid():
		return fserr.New(fserr.NotAuthenticated, "credentials", "", "no access token issued")
	}
	return nil
}

// Region returns RegionID, or fallback when it is empty.
func (c *Credentials) Region(fallback string) string {
	if c != nil && c.RegionID != "" {
		return c.RegionID
	}
	return fallback
}

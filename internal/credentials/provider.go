// Package credentials resolves the short-lived access credentials every
// object store call is authorized with.
//
// Providers perform one lookup per GetCredentials call. A lookup that
// reaches its source always yields a *Credentials value, possibly flagged
// with ConfigError or LoginError; only a failure to reach the source yields
// a nil value and an error. Callers must run Check before using the result.
package credentials

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// Provider fetches credentials.
type Provider interface {
	GetCredentials(ctx context.Context) (*Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*Credentials, error)

func (f ProviderFunc) GetCredentials(ctx context.Context) (*Credentials, error) {
	return f(ctx)
}

// StaticProvider always returns a copy of the same credentials.
type StaticProvider struct {
	Creds Credentials
}

// NewStaticProvider creates a provider returning creds.
func NewStaticProvider(creds Credentials) *StaticProvider {
	return &StaticProvider{Creds: creds}
}

func (p *StaticProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	c := p.Creds
	return &c, nil
}

// EnvProvider reads credentials from the process environment on every call.
type EnvProvider struct {
	log logrus.FieldLogger
}

// NewEnvProvider creates an environment backed provider.
func NewEnvProvider(log logrus.FieldLogger) *EnvProvider {
	return &EnvProvider{log: log}
}

func (p *EnvProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	creds := NewCredentials()
	if err := creds.LoadFromEnvironment(); err != nil {
		p.log.WithError(err).Debug("environment credentials not configured")
		creds.ConfigError = true
	}
	return creds, nil
}

// FileProvider reads an ACCESS_KEY:SECRET_KEY passwd file on every call.
type FileProvider struct {
	path   string
	region string
	log    logrus.FieldLogger
}

// NewFileProvider creates a passwd file backed provider. region is used as
// RegionID of the returned credentials.
func NewFileProvider(path, region string, log logrus.FieldLogger) *FileProvider {
	return &FileProvider{path: path, region: region, log: log}
}

func (p *FileProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	creds := NewCredentials()
	creds.RegionID = p.region
	if err := creds.LoadFromPasswdFile(p.path); err != nil {
		p.log.WithError(err).WithField("passwd_file", p.path).Warn("passwd file credentials unavailable")
		creds.ConfigError = true
		return creds, nil
	}
	if token := os.Getenv("AWS_SESSION_TOKEN"); token != "" {
		creds.AccessToken = token
	}
	return creds, nil
}

package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

// flag decodes the endpoint's error markers, which arrive either as JSON
// booleans or as 0/1 integers.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*f = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

type endpointPayload struct {
	AccessToken     string `json:"access_token"`
	ProjectID       string `json:"project_id"`
	RegionID        string `json:"region_id"`
	ConfigError     flag   `json:"config_error"`
	LoginError      flag   `json:"login_error"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

func (p *endpointPayload) credentials() *Credentials {
	return &Credentials{
		AccessToken:     p.AccessToken,
		ProjectID:       p.ProjectID,
		RegionID:        p.RegionID,
		ConfigError:     bool(p.ConfigError),
		LoginError:      bool(p.LoginError),
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
	}
}

// EndpointProvider asks a credential-issuing endpoint for a fresh token on
// every call. It never retries.
type EndpointProvider struct {
	url    string
	client *resty.Client
	log    logrus.FieldLogger
}

// NewEndpointProvider creates a provider for the endpoint at url.
func NewEndpointProvider(url string, timeout time.Duration, log logrus.FieldLogger) *EndpointProvider {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "bucketfs/1.0")

	return &EndpointProvider{url: url, client: client, log: log}
}

// SetHeader adds a header sent with every credential request.
func (p *EndpointProvider) SetHeader(key, value string) {
	p.client.SetHeader(key, value)
}

func (p *EndpointProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	var payload endpointPayload
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&payload).
		SetError(&payload).
		Get(p.url)
	if err != nil {
		p.log.WithError(err).WithField("endpoint", p.url).Error("failed to fetch credentials")
		return nil, fserr.Wrap(fserr.TransportFailure, "credentials", p.url, err)
	}

	creds := payload.credentials()
	if resp.IsError() {
		switch resp.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			creds.LoginError = true
		default:
			creds.ConfigError = true
		}
		p.log.WithFields(logrus.Fields{
			"endpoint": p.url,
			"status":   resp.StatusCode(),
		}).Warn("credential endpoint refused request")
	}
	if creds.ConfigError {
		p.log.WithField("endpoint", p.url).Warn("credential source reports a configuration error")
	}

	return creds, nil
}

package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

func TestLoadFromPasswdFile(t *testing.T) {
	tmpDir := t.TempDir()
	passwdFile := filepath.Join(tmpDir, ".passwd-bucketfs")

	err := os.WriteFile(passwdFile, []byte("TEST_ACCESS_KEY:TEST_SECRET_KEY"), 0600)
	if err != nil {
		t.Fatalf("Failed to create test passwd file: %v", err)
	}

	cred := NewCredentials()
	err = cred.LoadFromPasswdFile(passwdFile)
	if err != nil {
		t.Fatalf("Failed to load credentials: %v", err)
	}

	if cred.AccessKeyID != "TEST_ACCESS_KEY" {
		t.Errorf("Expected AccessKeyID 'TEST_ACCESS_KEY', got '%s'", cred.AccessKeyID)
	}

	if cred.SecretAccessKey != "TEST_SECRET_KEY" {
		t.Errorf("Expected SecretAccessKey 'TEST_SECRET_KEY', got '%s'", cred.SecretAccessKey)
	}
}

func TestLoadFromPasswdFileInvalidFormat(t *testing.T) {
	tmpDir := t.TempDir()
	passwdFile := filepath.Join(tmpDir, ".passwd-bucketfs")

	err := os.WriteFile(passwdFile, []byte("INVALID_FORMAT"), 0600)
	if err != nil {
		t.Fatalf("Failed to create test passwd file: %v", err)
	}

	cred := NewCredentials()
	err = cred.LoadFromPasswdFile(passwdFile)
	if err == nil {
		t.Error("Expected error for invalid format, got nil")
	}
}

func TestLoadFromPasswdFileNotFound(t *testing.T) {
	cred := NewCredentials()
	err := cred.LoadFromPasswdFile("/nonexistent/file")
	if err == nil {
		t.Error("Expected error for nonexistent file, got nil")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "ENV_ACCESS_KEY")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "ENV_SECRET_KEY")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("BUCKETFS_ACCESS_TOKEN", "")
	t.Setenv("AWS_SESSION_TOKEN", "")

	cred := NewCredentials()
	err := cred.LoadFromEnvironment()
	if err != nil {
		t.Fatalf("Failed to load credentials from environment: %v", err)
	}

	if cred.AccessKeyID != "ENV_ACCESS_KEY" {
		t.Errorf("Expected AccessKeyID 'ENV_ACCESS_KEY', got '%s'", cred.AccessKeyID)
	}
	if cred.SecretAccessKey != "ENV_SECRET_KEY" {
		t.Errorf("Expected SecretAccessKey 'ENV_SECRET_KEY', got '%s'", cred.SecretAccessKey)
	}
	if cred.RegionID != "eu-west-1" {
		t.Errorf("Expected RegionID 'eu-west-1', got '%s'", cred.RegionID)
	}
}

func TestLoadFromEnvironmentTokenOnly(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("BUCKETFS_ACCESS_TOKEN", "ya29.token")

	cred := NewCredentials()
	if err := cred.LoadFromEnvironment(); err != nil {
		t.Fatalf("Failed to load token from environment: %v", err)
	}
	if !cred.Usable() {
		t.Error("Expected token-only credentials to be usable")
	}
}

func TestIsValid(t *testing.T) {
	cred := NewCredentials()
	if cred.IsValid() {
		t.Error("Expected invalid credentials for empty cred, got valid")
	}

	cred.AccessKeyID = "TEST_KEY"
	cred.SecretAccessKey = "TEST_SECRET"
	if !cred.IsValid() {
		t.Error("Expected valid credentials, got invalid")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		creds  *Credentials
		usable bool
	}{
		{"nil", nil, false},
		{"empty", &Credentials{}, false},
		{"token", &Credentials{AccessToken: "t"}, true},
		{"config error", &Credentials{AccessToken: "t", ConfigError: true}, false},
		{"login error", &Credentials{LoginError: true}, false},
		{"key pair", &Credentials{AccessKeyID: "k", SecretAccessKey: "s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Check()
			if tt.usable {
				if err != nil {
					t.Fatalf("Expected usable credentials, got %v", err)
				}
				return
			}
			if !errors.Is(err, fserr.ErrNotAuthenticated) {
				t.Fatalf("Expected NotAuthenticated, got %v", err)
			}
			if tt.creds.Usable() {
				t.Error("Usable disagrees with Check")
			}
		})
	}
}

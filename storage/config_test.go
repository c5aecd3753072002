package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	var envs []string
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

func TestConfigFromEnv(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{
		"AWS_S3_ACCESS_KEY_ID":     "aws-key",
		"AWS_S3_SECRET_ACCESS_KEY": "aws-secret",
		"AWS_S3_REGION_NAME":       "eu-west-1",
		"AWS_S3_ENDPOINT_URL":      "http://minio:9000",
		"OCI_ACCESS_KEY_ID":        "oci-key",
		"OCI_SECRET_ACCESS_KEY":    "oci-secret",
		"OCI_REGION":               "eu-frankfurt-1",
		"GCP_CREDENTIALS_FILE":     "/secrets/gcp.json",
		"AZURE_ACCOUNT_NAME":       "account",
		"AZURE_ACCOUNT_KEY":        "a2V5",
	}}

	assert.Equal(t, Config{
		AWS: S3Credentials{
			AccessKeyID:     "aws-key",
			SecretAccessKey: "aws-secret",
			Region:          "eu-west-1",
			EndpointURL:     "http://minio:9000",
		},
		OCI: S3Credentials{
			AccessKeyID:     "oci-key",
			SecretAccessKey: "oci-secret",
			Region:          "eu-frankfurt-1",
		},
		GCP:   GCPConfig{CredentialsFile: "/secrets/gcp.json"},
		Azure: AzureConfig{AccountName: "account", AccountKey: "a2V5"},
	}, ConfigFromEnv(envRepo))
}

func TestConfigFromEnv_Empty(t *testing.T) {
	assert.Equal(t, Config{}, ConfigFromEnv(fakeEnvRepo{envVars: map[string]string{}}))
}

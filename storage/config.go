package storage

import (
	"github.com/bitrise-io/go-utils/v2/env"
)

// S3Credentials configures an S3 compatible client.
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	// EndpointURL overrides the endpoint resolved from the region.
	EndpointURL string
}

// GCPConfig configures the Google Cloud Storage backend.
type GCPConfig struct {
	// CredentialsFile is a service account key file. It is required for signing URLs.
	// Application default credentials are used when empty.
	CredentialsFile string
}

// AzureConfig configures the Azure Blob Storage backend.
type AzureConfig struct {
	AccountName string
	AccountKey  string
}

// Config holds the credentials of every bucket backend.
type Config struct {
	AWS   S3Credentials
	OCI   S3Credentials
	GCP   GCPConfig
	Azure AzureConfig
}

// ConfigFromEnv reads the backend credentials from the environment.
func ConfigFromEnv(envRepo env.Repository) Config {
	return Config{
		AWS: S3Credentials{
			AccessKeyID:     envRepo.Get("AWS_S3_ACCESS_KEY_ID"),
			SecretAccessKey: envRepo.Get("AWS_S3_SECRET_ACCESS_KEY"),
			Region:          envRepo.Get("AWS_S3_REGION_NAME"),
			EndpointURL:     envRepo.Get("AWS_S3_ENDPOINT_URL"),
		},
		OCI: S3Credentials{
			AccessKeyID:     envRepo.Get("OCI_ACCESS_KEY_ID"),
			SecretAccessKey: envRepo.Get("OCI_SECRET_ACCESS_KEY"),
			Region:          envRepo.Get("OCI_REGION"),
			EndpointURL:     envRepo.Get("OCI_ENDPOINT_URL"),
		},
		GCP: GCPConfig{
			CredentialsFile: envRepo.Get("GCP_CREDENTIALS_FILE"),
		},
		Azure: AzureConfig{
			AccountName: envRepo.Get("AZURE_ACCOUNT_NAME"),
			AccountKey:  envRepo.Get("AZURE_ACCOUNT_KEY"),
		},
	}
}

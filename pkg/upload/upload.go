// Package upload archives run directories to S3-compatible storage and
// reads them back.
package upload

import (
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
)

// Uploader uploads a local run directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in runDir. The directory basename is
	// used as a sub-prefix under the configured remote prefix.
	Upload(ctx context.Context, runDir string) error
}

// RunPrefix returns the key prefix of a run: <prefix>/<runName>.
func RunPrefix(prefix, runName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = config.DefaultS3Prefix
	}

	return prefix + "/" + runName
}

// RunKey returns the object key of a file inside a run. rel uses forward
// slashes.
func RunKey(prefix, runName, rel string) string {
	return path.Join(RunPrefix(prefix, runName), rel)
}

// NewS3Client constructs an S3 client from the storage config.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

package api

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/upload"
	"github.com/sirupsen/logrus"
)

// presignCacheEntry holds a cached presigned URL and its expiration time.
type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// s3Presigner generates presigned GET URLs for archived run files. It is
// the fallback for files no longer present under the datasets root.
type s3Presigner struct {
	log           logrus.FieldLogger
	cfg           *config.S3Config
	presignClient *s3.PresignClient
	expiry        time.Duration
	prefix        string
	cacheTTL      time.Duration
	mu            sync.RWMutex
	cache         map[string]presignCacheEntry
}

// newS3Presigner creates a new S3 presigner from the given configuration.
func newS3Presigner(
	log logrus.FieldLogger,
	cfg *config.S3Config,
) (*s3Presigner, error) {
	expiry, err := cfg.PresignExpiry()
	if err != nil {
		return nil, fmt.Errorf("parsing presigned_urls.expiry: %w", err)
	}

	return &s3Presigner{
		log:           log.WithField("component", "s3-presigner"),
		cfg:           cfg,
		presignClient: s3.NewPresignClient(upload.NewS3Client(cfg)),
		expiry:        expiry,
		prefix:        strings.TrimSuffix(upload.RunPrefix(cfg.Prefix, ""), "/"),
		cacheTTL:      expiry / 2,
		cache:         make(map[string]presignCacheEntry),
	}, nil
}

// RunFileURL returns a presigned URL for a file inside an archived run.
func (p *s3Presigner) RunFileURL(
	ctx context.Context,
	runName, rel string,
) (string, error) {
	return p.GeneratePresignedURL(ctx, upload.RunKey(p.cfg.Prefix, runName, rel))
}

// GeneratePresignedURL returns a presigned GET URL for the given S3 key.
// Results are cached for half the presigned URL expiry duration to avoid
// redundant presigning while ensuring URLs always have sufficient validity.
func (p *s3Presigner) GeneratePresignedURL(
	ctx context.Context,
	key string,
) (string, error) {
	if !p.isAllowedPath(key) {
		return "", fmt.Errorf("path %q is not within the run prefix", key)
	}

	now := time.Now()

	// Fast path: check cache under read lock.
	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	// Slow path: acquire write lock and double-check.
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	result, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning URL for %q: %w", key, err)
	}

	p.cache[key] = presignCacheEntry{
		url:       result.URL,
		expiresAt: now.Add(p.cacheTTL),
	}

	p.log.WithField("key", key).Debug("Presigned run file URL")

	return result.URL, nil
}

// isAllowedPath checks that the key is clean and names a file inside a run
// under the configured prefix.
func (p *s3Presigner) isAllowedPath(key string) bool {
	if key == "" || strings.Contains(key, "..") {
		return false
	}

	if path.Clean(key) != key {
		return false
	}

	rest, ok := strings.CutPrefix(key, p.prefix+"/")
	if !ok {
		return false
	}

	// <run>/<file>: a bare run prefix is not a file.
	return strings.Contains(rest, "/")
}

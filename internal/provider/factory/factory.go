// Package factory builds the configured provider.Client.
package factory

import (
	"context"
	"fmt"
	"net/url"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/config"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider/gdrive"
	s3provider "github.com/MabelMoncy/EduCrateNoteHub/internal/provider/s3"
)

// driveOrigin hosts Drive's preview and download pages.
const driveOrigin = "https://drive.google.com"

// New creates a provider.Client from the PROVIDER setting.
func New(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	switch cfg.Provider {
	case "gdrive":
		c, err := gdrive.New(ctx, gdrive.Config{
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			RootFolderID:    cfg.RootFolderID,
			MaxAttempts:     cfg.UpstreamMaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "s3":
		c, err := s3provider.New(ctx, s3provider.Config{
			Endpoint:   cfg.S3Endpoint,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Region:     cfg.S3Region,
			RootPrefix: cfg.S3RootPrefix,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider: %s", config.ErrConfiguration, cfg.Provider)
	}
}

// FrameSources returns the origins that redirected viewer pages are served
// from, for the page's frame-src policy.
func FrameSources(cfg *config.Config) []string {
	switch cfg.Provider {
	case "gdrive":
		return []string{driveOrigin}
	case "s3":
		u, err := url.Parse(cfg.S3Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil
		}
		return []string{u.Scheme + "://" + u.Host}
	default:
		return nil
	}
}

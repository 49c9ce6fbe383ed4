package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores chat media in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
		now:    time.Now,
	}, nil
}

// Upload sends the file to Cloudinary and returns a secure URL. Directory
// segments of name become sub-folders, so each conversation's media stays
// together.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	folder, publicID := s.placement(name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("folder", folder).Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

func (s *Service) placement(name string) (string, string) {
	cleaned := strings.TrimLeft(path.Clean("/"+name), "/")
	dir, file := path.Split(cleaned)

	segments := make([]string, 0, 4)
	if s.folder != "" {
		segments = append(segments, s.folder)
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part = sanitizeSegment(part); part != "" {
			segments = append(segments, part)
		}
	}

	return strings.Join(segments, "/"), s.buildPublicID(file)
}

func (s *Service) buildPublicID(name string) string {
	base := sanitizeSegment(strings.TrimSuffix(name, path.Ext(name)))
	if base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%s-%d", base, s.now().UnixNano())
}

func sanitizeSegment(value string) string {
	value = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '-'
	}, value)
	return strings.Trim(value, "-")
}

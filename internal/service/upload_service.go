package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/repository"
	"github.com/noah-isme/groupchat-api/internal/storage"
)

const maxFilesPerBatch = 10

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
	// ErrUploadMissingFile indicates an empty file slot in the batch.
	ErrUploadMissingFile = errors.New("file is required")
	// ErrUploadNoFiles indicates the request carried no files.
	ErrUploadNoFiles = errors.New("at least one file is required")
	// ErrUploadTooManyFiles indicates the batch exceeded the per-request limit.
	ErrUploadTooManyFiles = fmt.Errorf("at most %d files can be uploaded at once", maxFilesPerBatch)
	// ErrUploadNotFound indicates no progress is known for the upload id.
	ErrUploadNotFound = errors.New("upload not found")
)

// UploadService validates, stores and announces media uploads.
type UploadService interface {
	UploadBatch(ctx context.Context, loc conversation.Location, senderID string, files []*multipart.FileHeader, opts dto.UploadOptions) (dto.UploadBatchResponse, error)
	Progress(ctx context.Context, loc conversation.Location, userID, uploadID string) ([]dto.UploadProgress, error)
}

type uploadService struct {
	storage  storage.FileStorage
	repo     repository.UploadRepository
	messages MessageService
	access   AccessChecker
	progress ProgressSink
	logger   zerolog.Logger
	maxSize  int64
	tracer   trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(store storage.FileStorage, repo repository.UploadRepository, messages MessageService, access AccessChecker, progress ProgressSink, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &uploadService{
		storage:  store,
		repo:     repo,
		messages: messages,
		access:   access,
		progress: progress,
		logger:   logger.With().Str("component", "upload_service").Logger(),
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		tracer:   otel.Tracer("github.com/noah-isme/groupchat-api/internal/service/upload"),
	}
}

// UploadBatch stores files one after another. A file that fails validation or
// storage is reported in its item and the rest of the batch continues.
func (s *uploadService) UploadBatch(ctx context.Context, loc conversation.Location, senderID string, files []*multipart.FileHeader, opts dto.UploadOptions) (dto.UploadBatchResponse, error) {
	if len(files) == 0 {
		return dto.UploadBatchResponse{}, ErrUploadNoFiles
	}
	if len(files) > maxFilesPerBatch {
		return dto.UploadBatchResponse{}, ErrUploadTooManyFiles
	}
	if opts.Voice && len(files) != 1 {
		return dto.UploadBatchResponse{}, fmt.Errorf("voice uploads carry exactly one file: %w", ErrUploadTooManyFiles)
	}

	path := SendPathMedia
	if opts.Voice {
		path = SendPathVoice
	}

	access, err := s.messages.AuthorizeSend(ctx, loc, senderID, path)
	if err != nil {
		return dto.UploadBatchResponse{}, err
	}

	uploadID := strings.TrimSpace(opts.UploadID)
	if uploadID == "" {
		uploadID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "upload.batch", trace.WithAttributes(
		attribute.String("conversation", loc.MetadataPath),
		attribute.String("upload.id", uploadID),
		attribute.Int("upload.files", len(files)),
		attribute.Bool("upload.voice", opts.Voice),
	))
	defer span.End()

	result := dto.UploadBatchResponse{UploadID: uploadID, Items: make([]dto.UploadItemResult, 0, len(files))}
	captionPending := true

	for index, file := range files {
		item := dto.UploadItemResult{}
		if file != nil {
			item.FileName = file.Filename
		}

		if err := ctx.Err(); err != nil {
			item.Error = "upload cancelled"
			result.Items = append(result.Items, item)
			result.Failed++
			continue
		}

		progress := func(percent int) {
			s.progress.Report(ctx, loc, dto.UploadProgress{
				UploadID: uploadID,
				FileName: item.FileName,
				Index:    index,
				Total:    len(files),
				Percent:  percent,
			})
		}

		stored, err := s.storeFile(ctx, loc, senderID, uploadID, file, opts.Voice, progress)
		if err != nil {
			s.logger.Warn().Err(err).Str("upload_id", uploadID).Str("file", item.FileName).Msg("upload item failed")
			observability.UploadRequests().WithLabelValues(path, "failed").Inc()
			item.Error = err.Error()
			result.Items = append(result.Items, item)
			result.Failed++
			continue
		}
		item.Upload = &stored

		input := dto.MediaMessageInput{
			Kind:         stored.Kind,
			URL:          stored.URL,
			Name:         stored.FileName,
			Size:         stored.SizeBytes,
			ThumbnailURL: stored.ThumbnailURL,
			SenderName:   opts.SenderName,
		}
		if opts.Voice {
			input.Duration = opts.Duration
		}
		if captionPending {
			input.Caption = opts.Caption
			input.ReplyToID = opts.ReplyToID
		}

		message, err := s.messages.SendMedia(ctx, access, senderID, input)
		if err != nil {
			s.logger.Error().Err(err).Str("upload_id", uploadID).Str("file", item.FileName).Msg("stored file could not be posted")
			observability.UploadRequests().WithLabelValues(path, "failed").Inc()
			item.Error = err.Error()
			result.Items = append(result.Items, item)
			result.Failed++
			continue
		}
		captionPending = false

		progress(100)
		observability.UploadRequests().WithLabelValues(path, "stored").Inc()
		item.Message = &message
		result.Items = append(result.Items, item)
		result.Succeeded++
	}

	span.SetAttributes(attribute.Int("upload.succeeded", result.Succeeded), attribute.Int("upload.failed", result.Failed))
	if result.Succeeded == 0 {
		span.SetStatus(codes.Error, "no file stored")
	} else {
		span.SetStatus(codes.Ok, "stored")
	}
	return result, ctx.Err()
}

func (s *uploadService) storeFile(ctx context.Context, loc conversation.Location, senderID, uploadID string, file *multipart.FileHeader, voice bool, progress func(int)) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("upload.max_bytes", s.maxSize))
	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		observability.UploadRejected().WithLabelValues("missing").Inc()
		return dto.UploadResponse{}, ErrUploadMissingFile
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	path := SendPathMedia
	if voice {
		path = SendPathVoice
	}
	start := time.Now()
	defer func() {
		observability.UploadLatency().WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	fileType := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	kind, ok := classifyMedia(fileType, voice)
	if !ok {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrUploadTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.UploadResponse{}, fmt.Errorf("%s: %w", fileType, ErrUploadTypeNotAllowed)
	}

	if err := s.scan(buf.Bytes(), fileType); err != nil {
		observability.UploadRejected().WithLabelValues("scan").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return dto.UploadResponse{}, err
	}

	checksum := sha256.Sum256(buf.Bytes())
	sanitizedName := sanitizeFileName(file.Filename)
	objectName := loc.MetadataPath + "/" + sanitizedName
	span.SetAttributes(
		attribute.String("upload.sanitized_name", sanitizedName),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	progress(0)
	reader := newProgressReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), progress)
	url, err := s.storage.Upload(ctx, objectName, reader)
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, err
	}

	thumbnailURL := ""
	if kind == models.MessageKindImage {
		thumbnailURL = s.storeThumbnail(ctx, loc, sanitizedName, buf.Bytes())
	}

	record := models.UploadRecord{
		UploadID:     uploadID,
		UserID:       senderID,
		Conversation: loc.MessagesPath,
		FileName:     sanitizedName,
		URL:          url,
		MimeType:     fileType,
		Kind:         kind,
		SizeBytes:    int64(buf.Len()),
		Checksum:     hex.EncodeToString(checksum[:]),
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	return dto.UploadResponse{
		URL:          url,
		ThumbnailURL: thumbnailURL,
		SizeBytes:    record.SizeBytes,
		MimeType:     record.MimeType,
		Kind:         kind,
		Checksum:     record.Checksum,
		FileName:     record.FileName,
	}, nil
}

func (s *uploadService) storeThumbnail(ctx context.Context, loc conversation.Location, name string, payload []byte) string {
	thumb, err := storage.Thumbnail(bytes.NewReader(payload))
	if err != nil {
		s.logger.Debug().Err(err).Str("file", name).Msg("thumbnail skipped")
		return ""
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	url, err := s.storage.Upload(ctx, loc.MetadataPath+"/thumbs/"+base+".jpg", bytes.NewReader(thumb))
	if err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("failed to store thumbnail")
		return ""
	}
	return url
}

func (s *uploadService) Progress(ctx context.Context, loc conversation.Location, userID, uploadID string) ([]dto.UploadProgress, error) {
	if _, err := s.access.CanAccess(ctx, loc, userID); err != nil {
		return nil, err
	}
	items, err := s.progress.Load(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}

	// Progress entries expire; stored files are reported as complete.
	records, err := s.repo.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Conversation != loc.MessagesPath {
			continue
		}
		items = append(items, dto.UploadProgress{UploadID: uploadID, FileName: record.FileName, Percent: 100})
	}
	if len(items) == 0 {
		return nil, ErrUploadNotFound
	}
	for i := range items {
		items[i].Index = i
		items[i].Total = len(items)
	}
	return items, nil
}

func (s *uploadService) scan(payload []byte, mime string) error {
	if strings.Contains(mime, "zip") {
		reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			return ErrUploadScanFailed
		}
		var totalUncompressed uint64
		for _, f := range reader.File {
			totalUncompressed += f.UncompressedSize64
			if totalUncompressed > uint64(s.maxSize*20) {
				return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
			}
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(lower, ';'); i >= 0 {
		lower = strings.TrimSpace(lower[:i])
	}
	if lower == "application/x-zip-compressed" {
		return "application/zip"
	}
	return lower
}

var documentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/zip":    {},
	"application/msword": {},
	"application/vnd.ms-excel":      {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"text/plain": {},
	"text/csv":   {},
}

// classifyMedia maps a detected MIME type to a message kind. Audio becomes a
// voice message only on the voice path; some recorders emit webm, which is
// detected as video.
func classifyMedia(mime string, voice bool) (string, bool) {
	if voice {
		if strings.HasPrefix(mime, "audio/") || mime == "video/webm" || mime == "application/ogg" {
			return models.MessageKindVoice, true
		}
		return "", false
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MessageKindImage, true
	case strings.HasPrefix(mime, "video/"):
		return models.MessageKindVideo, true
	case strings.HasPrefix(mime, "audio/"):
		return models.MessageKindDocument, true
	}
	if _, ok := documentTypes[mime]; ok {
		return models.MessageKindDocument, true
	}
	return "", false
}

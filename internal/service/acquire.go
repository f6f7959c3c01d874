package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
)

// supportedTypes is the acquisition allow-list, keyed by canonical MIME type.
// The value is the file extension used for archive keys.
var supportedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
	"image/heic":    ".heic",
	"image/heif":    ".heif",
	"image/avif":    ".avif",
}

var mimeAliases = map[string]string{
	"image/jpg":                "image/jpeg",
	"image/pjpeg":              "image/jpeg",
	"image/x-png":              "image/png",
	"image/x-ms-bmp":           "image/bmp",
	"image/x-bmp":              "image/bmp",
	"image/vnd.microsoft.icon": "image/x-icon",
	"image/heic-sequence":      "image/heic",
	"image/heif-sequence":      "image/heif",
}

var extensionTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
}

// canonicalMIME lowercases t, drops parameters and resolves known aliases.
func canonicalMIME(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if idx := strings.Index(t, ";"); idx != -1 {
		t = strings.TrimSpace(t[:idx])
	}
	if alias, ok := mimeAliases[t]; ok {
		return alias
	}
	return t
}

// IsSupportedType reports whether t is on the allow-list.
func IsSupportedType(t string) bool {
	_, ok := supportedTypes[canonicalMIME(t)]
	return ok
}

// ExtensionFor returns the archive extension for an allowed MIME type.
func ExtensionFor(t string) string {
	if ext, ok := supportedTypes[canonicalMIME(t)]; ok {
		return ext
	}
	return ".bin"
}

// resolveMIME picks the first allowed type among the sniffed content type, the
// declared type and the file extension. It returns the best guess and false
// when none is allowed.
func resolveMIME(data []byte, declared, name string) (string, bool) {
	candidates := []string{
		mimetype.Detect(data).String(),
		declared,
		extensionTypes[strings.ToLower(filepath.Ext(name))],
	}
	for _, c := range candidates {
		if IsSupportedType(c) {
			return canonicalMIME(c), true
		}
	}
	for _, c := range candidates {
		if c != "" {
			return canonicalMIME(c), false
		}
	}
	return "", false
}

type AcquirerConfig struct {
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
}

// ImageAcquirer turns a URL or an upload into an allow-listed ImageBlob.
type ImageAcquirer struct {
	client   *resty.Client
	maxBytes int64
}

// NewImageAcquirer creates an acquirer whose downloads are bounded by
// cfg.Timeout and cfg.MaxBytes.
func NewImageAcquirer(cfg AcquirerConfig) *ImageAcquirer {
	client := resty.New()
	client.SetLogger(logger.GetDefault())
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "image/*")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &ImageAcquirer{
		client:   client,
		maxBytes: cfg.MaxBytes,
	}
}

// MaxBytes returns the size ceiling applied to downloads and uploads.
func (a *ImageAcquirer) MaxBytes() int64 {
	return a.maxBytes
}

// Acquire enforces that exactly one source is present and loads it.
func (a *ImageAcquirer) Acquire(ctx context.Context, in AnalyzeInput) (*domain.ImageBlob, error) {
	hasURL := strings.TrimSpace(in.ImageURL) != ""
	hasUpload := in.Upload != nil

	switch {
	case hasURL && hasUpload:
		return nil, fmt.Errorf("%w: provide either image_url or image_file, not both", domain.ErrBadInput)
	case !hasURL && !hasUpload:
		return nil, fmt.Errorf("%w: no image provided, send image_url or image_file", domain.ErrBadInput)
	case hasURL:
		return a.FetchURL(ctx, strings.TrimSpace(in.ImageURL))
	default:
		return a.FromUpload(in.Upload)
	}
}

// FetchURL downloads rawURL. Transport failures, non-2xx responses and
// bodies over the size ceiling are download errors.
func (a *ImageAcquirer) FetchURL(ctx context.Context, rawURL string) (*domain.ImageBlob, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: image_url must be an absolute http(s) URL", domain.ErrBadInput)
	}

	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: server responded with HTTP %d", domain.ErrDownload, resp.StatusCode())
	}

	if cl := resp.RawResponse.ContentLength; cl > a.maxBytes {
		return nil, a.tooLarge(cl)
	}

	data, err := io.ReadAll(io.LimitReader(body, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrDownload, err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, a.tooLarge(int64(len(data)))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response body", domain.ErrDownload)
	}

	mimeType, ok := resolveMIME(data, resp.Header().Get("Content-Type"), u.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, describeType(mimeType))
	}

	logger.With(logger.Fields{"mime_type": mimeType}).
		WithDuration(time.Since(start).Milliseconds()).
		WithSize(len(data)).
		Info(ctx, "Image downloaded")

	return &domain.ImageBlob{
		Data:     data,
		MIMEType: mimeType,
		Source:   domain.SourceURL,
		Origin:   u.String(),
	}, nil
}

// FromUpload validates an in-memory upload against the allow-list.
func (a *ImageAcquirer) FromUpload(up *domain.Upload) (*domain.ImageBlob, error) {
	if up == nil || len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", domain.ErrBadInput)
	}
	if int64(len(up.Data)) > a.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrPayloadTooLarge, a.maxBytes)
	}

	mimeType, ok := resolveMIME(up.Data, up.ContentType, up.Filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, describeType(mimeType))
	}

	return &domain.ImageBlob{
		Data:     up.Data,
		MIMEType: mimeType,
		Source:   domain.SourceUpload,
		Origin:   up.Filename,
	}, nil
}

func (a *ImageAcquirer) tooLarge(size int64) error {
	return fmt.Errorf("%w: %w: image is %d bytes, limit is %d", domain.ErrDownload, domain.ErrPayloadTooLarge, size, a.maxBytes)
}

func describeType(t string) string {
	if t == "" {
		return "could not determine file type"
	}
	return t
}

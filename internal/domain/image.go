package domain

// ImageBlob is the raw image as acquired from a URL or an upload.
// It belongs to a single in-flight request.
type ImageBlob struct {
	Data     []byte
	MIMEType string
	// Source is "url" or "upload".
	Source string
	// Origin is the image URL or the uploaded file name.
	Origin string
}

// NormalizedImage is the re-encoded payload sent to the vision provider.
type NormalizedImage struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	// Passthrough is true when the original bytes were forwarded unchanged
	// because no decoder exists for the format.
	Passthrough bool
}

// Upload is an in-memory multipart upload.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Stage is a step of the per-request analysis state machine.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageAcquiring    Stage = "acquiring"
	StageNormalizing  Stage = "normalizing"
	StageRateLimited  Stage = "rate_limited"
	StageGenerating   Stage = "generating"
	StageCleaningText Stage = "cleaning_text"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Image source identifiers.
const (
	SourceURL    = "url"
	SourceUpload = "upload"
)

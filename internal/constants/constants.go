// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort         = "8080"
	DefaultDBDriver     = "sqlite"
	DefaultDBPath       = "etude.db"
	DefaultStorageDir   = "data/objects"
	DefaultPDFBucket    = "etude-pdfs"
	DefaultDerivedBkt   = "etude-artifacts"
	DefaultOMRURL       = "http://omr:8001"
	DefaultFingeringURL = "http://fingering-service:8002"
	DefaultRendererURL  = "http://renderer-service:8003"
	DefaultListLimit    = 50
	MaxListLimit        = 100
	DefaultOwnerHeader  = "X-User-ID"
)

// Storage backends
const (
	StorageBackendFS     = "fs"
	StorageBackendMemory = "memory"
	StorageBackendMinio  = "minio"
	StorageBackendGCS    = "gcs"
)

// Queue backends
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Stage service timeouts
const (
	OMRTimeout       = 300 * time.Second
	FingeringTimeout = 180 * time.Second
	RenderTimeout    = 120 * time.Second
	HealthTimeout    = 5 * time.Second
)

// Service client retry policy
const (
	DefaultRetryCount      = 3
	DefaultRetryBase       = 2 * time.Second
	DefaultRetryMax        = 10 * time.Second
	DefaultHealthRetries   = 3
	DefaultHealthRetryWait = 1 * time.Second
)

// Stage handler failure recording
const (
	StatusUpdateRetries   = 3
	StatusUpdateRetryWait = 500 * time.Millisecond
	MaxErrorMessageLength = 1000
	MaxServiceErrorDetail = 500
)

// Worker limits
const (
	DefaultConcurrency     = 2
	DefaultMaxTasksPerSlot = 50
	DefaultSoftTimeLimit   = 25 * time.Minute
	DefaultHardTimeLimit   = 30 * time.Minute
	DefaultDequeueWait     = 5 * time.Second
)

// Score resolution
const (
	QuantizeTolerance   = 0.05
	QuantizeMinDuration = 0.0625
	VoiceTimeTolerance  = 0.01
	MaxVoices           = 4
	RenderCacheTTL      = time.Hour
	FingeringPolicy     = "mle"
)

// Schema versions of stored non-IR artifacts
const (
	PDFSchemaVersion = "1.0.0"
	RenderSchema     = "1.0.0"
)

// Lineage transformation names
const (
	TransformOMR       = "omr_to_ir"
	TransformFingering = "fingering_inference"
	TransformUpload    = "ir_upload"
	TransformVersion   = "1.0.0"
)

// Render formats
const (
	FormatMusicXML = "musicxml"
	FormatMIDI     = "midi"
	FormatSVG      = "svg"
	FormatPNG      = "png"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Upload limits
const (
	MaxUploadBytes = 50 << 20
	PDFExtension   = ".pdf"
)

package constants

import "time"

const (
	DefaultFlushInterval = 2 * time.Second
	DefaultTagSpeed      = 1.0
	DefaultPreviewLead   = 1500 * time.Millisecond
	DefaultPreviewTail   = 2 * time.Second
	FrameStep            = 1.0 / 30.0
)

const (
	WebhookTimeout  = 10 * time.Second
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	MaxRequestBody = 1 << 20
)

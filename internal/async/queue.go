package async

import (
	"context"
	"time"
)

// Job is one image file waiting to be processed.
type Job struct {
	Path        string
	Force       bool // reprocess even when a result file exists
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

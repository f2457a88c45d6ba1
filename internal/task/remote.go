package task

import (
	"context"
	"fmt"
	"io"
)

// Uploader sends one document to the analysis backend.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// BlobOpener gives access to the bytes of a staged file.
type BlobOpener interface {
	Open(id string) (io.ReadCloser, error)
}

// Remote forwards every staged file to the analysis backend.
// Progress is the share of files uploaded so far.
type Remote struct {
	uploader Uploader
	blobs    BlobOpener
}

// NewRemote creates a runner backed by the given uploader and blob store.
func NewRemote(uploader Uploader, blobs BlobOpener) *Remote {
	return &Remote{uploader: uploader, blobs: blobs}
}

// Run uploads the files in order and stops at the first failure.
func (r *Remote) Run(ctx context.Context, job Job, report func(progress int)) error {
	total := len(job.Files)
	if total == 0 {
		return fmt.Errorf("no files to process")
	}
	for i, f := range job.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.uploadOne(ctx, f.ID, f.Name); err != nil {
			return fmt.Errorf("uploading %s: %w", f.Name, err)
		}
		report((i + 1) * 100 / total)
	}
	return nil
}

func (r *Remote) uploadOne(ctx context.Context, id, name string) error {
	rc, err := r.blobs.Open(id)
	if err != nil {
		return fmt.Errorf("opening staged file: %w", err)
	}
	defer rc.Close()

	_, err = r.uploader.Upload(ctx, name, rc)
	return err
}

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	uploaded map[string]string
	failOn   string
}

func (f *fakeUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if name == f.failOn {
		return "", errors.New("connection refused")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploaded[name] = string(data)
	return "ok", nil
}

type fakeBlobs map[string]string

func (b fakeBlobs) Open(id string) (io.ReadCloser, error) {
	data, ok := b[id]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", id)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func TestRemote_UploadsEveryFile(t *testing.T) {
	up := &fakeUploader{uploaded: map[string]string{}}
	r := NewRemote(up, fakeBlobs{"1": "alpha", "2": "beta"})

	var progress []int
	err := r.Run(context.Background(), Job{Files: []models.FileEntry{
		{ID: "1", Name: "a.pdf"},
		{ID: "2", Name: "b.pdf"},
	}}, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, progress)
	assert.Equal(t, map[string]string{"a.pdf": "alpha", "b.pdf": "beta"}, up.uploaded)
}

func TestRemote_StopsAtFirstFailure(t *testing.T) {
	up := &fakeUploader{uploaded: map[string]string{}, failOn: "b.pdf"}
	r := NewRemote(up, fakeBlobs{"1": "alpha", "2": "beta", "3": "gamma"})

	var progress []int
	err := r.Run(context.Background(), Job{Files: []models.FileEntry{
		{ID: "1", Name: "a.pdf"},
		{ID: "2", Name: "b.pdf"},
		{ID: "3", Name: "c.pdf"},
	}}, func(p int) { progress = append(progress, p) })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.pdf")
	assert.Equal(t, []int{33}, progress)
	assert.NotContains(t, up.uploaded, "c.pdf")
}

func TestRemote_MissingBlob(t *testing.T) {
	r := NewRemote(&fakeUploader{uploaded: map[string]string{}}, fakeBlobs{})
	err := r.Run(context.Background(), Job{Files: []models.FileEntry{{ID: "x", Name: "x.pdf"}}}, func(int) {})
	assert.ErrorContains(t, err, "opening staged file")
}

func TestRemote_NoFiles(t *testing.T) {
	r := NewRemote(&fakeUploader{uploaded: map[string]string{}}, fakeBlobs{})
	assert.Error(t, r.Run(context.Background(), Job{}, func(int) {}))
}

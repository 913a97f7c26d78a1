// Package storage keeps uploaded PDFs and conversion artifacts on disk.
//
// Layout under the root directory:
//
//	uploads/<id>/original.pdf
//	uploads/<id>/upload.json
//	artifacts/<id>/facturx.pdf
//	artifacts/<id>/invoice.xml
//	artifacts/<id>/validation-report.pdf
//	artifacts/<id>/validation-report.txt
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned for unknown ids and missing artifacts
var ErrNotFound = errors.New("not found")

// Artifact kinds served by the download endpoint
const (
	KindPDF        = "facturx.pdf"
	KindXML        = "invoice.xml"
	KindReportPDF  = "validation-report.pdf"
	KindReportText = "validation-report.txt"
)

const (
	uploadFile = "original.pdf"
	metaFile   = "upload.json"

	dirPerm  = 0o750
	filePerm = 0o640
)

// Upload is a stored original PDF
type Upload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Data      []byte    `json:"-"`
}

// Artifacts are the files produced by one conversion
type Artifacts struct {
	PDF        []byte
	XML        []byte
	ReportPDF  []byte
	ReportText []byte
}

// FileStore stores uploads and artifacts under ULID ids
type FileStore struct {
	root  string
	newID func() string
	now   func() time.Time
}

// NewFileStore creates the store directories under root
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("storage root cannot be empty")
	}
	for _, dir := range []string{"uploads", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(root, dir), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &FileStore{
		root:  root,
		newID: func() string { return ulid.Make().String() },
		now:   time.Now,
	}, nil
}

// Root returns the storage root directory
func (s *FileStore) Root() string { return s.root }

// SaveUpload stores data as a new upload and returns its record
func (s *FileStore) SaveUpload(ctx context.Context, name string, data []byte) (*Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	up := &Upload{
		ID:        s.newID(),
		Name:      filepath.Base(name),
		Size:      int64(len(data)),
		CreatedAt: s.now().UTC(),
	}
	dir := filepath.Join(s.root, "uploads", up.ID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	if err := writeFile(filepath.Join(dir, uploadFile), data); err != nil {
		return nil, err
	}
	meta, err := json.Marshal(up)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload metadata: %w", err)
	}
	if err := writeFile(filepath.Join(dir, metaFile), meta); err != nil {
		return nil, err
	}

	up.Data = data
	return up, nil
}

// Get loads an upload with its content
func (s *FileStore) Get(ctx context.Context, id string) (*Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrNotFound
	}

	dir := filepath.Join(s.root, "uploads", id)
	meta, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read upload metadata: %w", err)
	}

	var up Upload
	if err := json.Unmarshal(meta, &up); err != nil {
		return nil, fmt.Errorf("failed to decode upload metadata: %w", err)
	}
	up.Data, err = os.ReadFile(filepath.Join(dir, uploadFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &up, nil
}

// SaveArtifacts stores the conversion outputs of upload id, replacing any
// earlier ones. Empty parts are skipped.
func (s *FileStore) SaveArtifacts(ctx context.Context, id string, a *Artifacts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return ErrNotFound
	}
	if a == nil {
		return errors.New("artifacts cannot be nil")
	}

	dir := filepath.Join(s.root, "artifacts", id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	parts := []struct {
		kind string
		data []byte
	}{
		{KindPDF, a.PDF},
		{KindXML, a.XML},
		{KindReportPDF, a.ReportPDF},
		{KindReportText, a.ReportText},
	}
	for _, p := range parts {
		if len(p.data) == 0 {
			continue
		}
		if err := writeFile(filepath.Join(dir, p.kind), p.data); err != nil {
			return err
		}
	}
	return nil
}

// Artifact reads one stored artifact
func (s *FileStore) Artifact(ctx context.Context, id, kind string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) || !ValidKind(kind) {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.root, "artifacts", id, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// ValidKind reports whether kind names a downloadable artifact
func ValidKind(kind string) bool {
	switch kind {
	case KindPDF, KindXML, KindReportPDF, KindReportText:
		return true
	}
	return false
}

// ContentType returns the MIME type of an artifact kind
func ContentType(kind string) string {
	switch kind {
	case KindPDF, KindReportPDF:
		return "application/pdf"
	case KindXML:
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// validID accepts only ULIDs, which keeps ids from escaping the root
func validID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// writeFile writes through a temporary file so readers never see a partial file
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store %s: %w", filepath.Base(path), err)
	}
	return nil
}

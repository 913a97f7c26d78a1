package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/auth"
	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/storage"
)

// UploadResponse is the answer of POST /api/upload
type UploadResponse struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// ProcessRequest is the JSON body of POST /api/process
type ProcessRequest struct {
	FileID      string                `json:"fileId"`
	InvoiceData facturx.InvoiceRecord `json:"invoiceData"`
	Profile     string                `json:"profile"`
}

type fileRequest struct {
	FileID string `json:"fileId"`
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := a.readPDF(w, r)
	if !ok {
		return
	}

	up, err := a.store.SaveUpload(r.Context(), name, data)
	if err != nil {
		a.internalError(w, r, "failed to store upload", err)
		return
	}
	observability.FromContext(r.Context()).Info("upload stored",
		zap.String("file_id", up.ID), zap.Int64("size", up.Size))

	writeJSON(w, http.StatusCreated, UploadResponse{FileID: up.ID, FileName: up.Name, Size: up.Size})
}

func (a *API) extract(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	up, ok := a.loadUpload(w, r, req.FileID)
	if !ok {
		return
	}

	result, err := a.documents.ExtractFieldsFromBytes(up.Data)
	if err != nil {
		WriteError(r.Context(), w, NewError("extraction_failed", err.Error(), http.StatusUnprocessableEntity))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fileId":      up.ID,
		"fields":      result.Fields,
		"found":       result.Found,
		"pages":       result.Pages,
		"contentType": result.ContentType,
	})
}

// process accepts either a JSON body naming an upload or a multipart form
// carrying the PDF with invoice_data and profile fields
func (a *API) process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		name, data, ok := a.readPDF(w, r)
		if !ok {
			return
		}
		if raw := r.FormValue("invoice_data"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.InvoiceData); err != nil {
				WriteError(r.Context(), w, NewError("invalid_request", "invoice_data is not valid JSON", http.StatusBadRequest))
				return
			}
		}
		req.Profile = r.FormValue("profile")

		up, err := a.store.SaveUpload(r.Context(), name, data)
		if err != nil {
			a.internalError(w, r, "failed to store upload", err)
			return
		}
		req.FileID = up.ID
	} else if !decodeJSON(w, r, &req) {
		return
	}

	result, err := a.converter.Convert(r.Context(), convert.Request{
		Token:   auth.BearerToken(r),
		FileID:  req.FileID,
		Record:  req.InvoiceData,
		Profile: req.Profile,
	})
	if err != nil {
		writeConvertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) inspect(w http.ResponseWriter, r *http.Request) {
	_, data, ok := a.readPDF(w, r)
	if !ok {
		return
	}
	result, err := a.documents.Inspector().Inspect(data)
	if err != nil {
		WriteError(r.Context(), w, NewError("invalid_pdf", err.Error(), http.StatusUnprocessableEntity))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	kind := chi.URLParam(r, "type")
	if !storage.ValidKind(kind) {
		WriteError(r.Context(), w, NewError("invalid_request", fmt.Sprintf("unknown artifact type %q", kind), http.StatusBadRequest))
		return
	}

	data, err := a.store.Artifact(r.Context(), id, kind)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(r.Context(), w, NewError("file_not_found", "artifact not found", http.StatusNotFound))
			return
		}
		a.internalError(w, r, "failed to read artifact", err)
		return
	}

	w.Header().Set("Content-Type", storage.ContentType(kind))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-"+kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// readPDF reads the multipart "file" field and validates it as a PDF
func (a *API) readPDF(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	limit := a.documents.GetMaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(r.Context(), w, NewError("file_too_large", fmt.Sprintf("file exceeds %d bytes", limit), http.StatusRequestEntityTooLarge))
			return "", nil, false
		}
		WriteError(r.Context(), w, NewError("invalid_request", "expected a multipart form with a file field", http.StatusBadRequest))
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(r.Context(), w, NewError("invalid_request", "file field is required", http.StatusBadRequest))
		return "", nil, false
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		a.internalError(w, r, "failed to read upload", err)
		return "", nil, false
	}
	if int64(len(data)) > limit {
		WriteError(r.Context(), w, NewError("file_too_large", fmt.Sprintf("file exceeds %d bytes", limit), http.StatusRequestEntityTooLarge))
		return "", nil, false
	}
	if err := a.documents.Validator().ValidateUpload(header.Filename, data); err != nil {
		WriteError(r.Context(), w, NewError("invalid_pdf", err.Error(), http.StatusBadRequest))
		return "", nil, false
	}
	return header.Filename, data, true
}

func (a *API) loadUpload(w http.ResponseWriter, r *http.Request, id string) (*storage.Upload, bool) {
	if strings.TrimSpace(id) == "" {
		WriteError(r.Context(), w, NewError("invalid_request", "fileId is required", http.StatusBadRequest))
		return nil, false
	}
	up, err := a.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(r.Context(), w, NewError("file_not_found", "file not found", http.StatusNotFound))
			return nil, false
		}
		a.internalError(w, r, "failed to load upload", err)
		return nil, false
	}
	return up, true
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	observability.FromContext(r.Context()).Error(message, zap.Error(err))
	WriteError(r.Context(), w, NewError("internal_error", message, http.StatusInternalServerError))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, formOverhead))
	if err := dec.Decode(v); err != nil {
		WriteError(r.Context(), w, NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// writeConvertError maps a conversion failure to its envelope
func writeConvertError(w http.ResponseWriter, r *http.Request, err error) {
	var se *convert.StageError
	if !errors.As(err, &se) {
		observability.FromContext(r.Context()).Error("conversion failed", zap.Error(err))
		WriteError(r.Context(), w, NewError("internal_error", "conversion failed", http.StatusInternalServerError))
		return
	}

	message := se.Message
	if se.Kind == convert.KindInternal {
		message = "conversion failed"
	}
	WriteError(r.Context(), w, NewError(se.Code(), message, se.Status).WithDetails(map[string]any{
		"stage": string(se.Stage),
	}))
}

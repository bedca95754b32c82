package server

import (
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/imaging"
	"github.com/osoji/rxscan/internal/pipeline"
)

// multipartMemory caps how much of a parsed form is held in memory before
// spilling to disk.
const multipartMemory = 10 << 20

// handleUploadImage accepts one prescription image plus an optional
// crop_data form value and runs the full scan pipeline synchronously.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeUploadParseError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		s.writeUploadParseError(w, r, err)
		return
	}

	img, format, err := imaging.Decode(raw)
	if err != nil {
		s.logger.Warn("upload rejected, undecodable image", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image file"})
		return
	}

	img = s.applyCrop(r, img, header.Filename)

	out, err := s.proc.ProcessImage(r.Context(), img, format, header.Filename, raw)
	if err != nil {
		s.writeProcessError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadPayload(out))
}

// handleUploadMultiple accepts a batch under the "files" field. Each file
// gets its own result object; a bad file never fails the batch.
func (s *Server) handleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeUploadParseError(w, r, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "files field is required"})
		return
	}

	results := make([]map[string]any, 0, len(headers))
	for _, header := range headers {
		results = append(results, s.processUploadedFile(r, header))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) processUploadedFile(r *http.Request, header *multipart.FileHeader) map[string]any {
	file, err := header.Open()
	if err != nil {
		return map[string]any{"filename": header.Filename, "error": "could not read file"}
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return map[string]any{"filename": header.Filename, "error": "could not read file"}
	}

	img, format, err := imaging.Decode(raw)
	if err != nil {
		s.logger.Warn("batch upload, undecodable image", "filename", header.Filename, "error", err)
		return map[string]any{"filename": header.Filename, "error": "Invalid image file"}
	}

	out, err := s.proc.ProcessImage(r.Context(), img, format, header.Filename, raw)
	if err != nil {
		return map[string]any{"filename": header.Filename, "error": processErrorMessage(err)}
	}

	payload := uploadPayload(out)
	payload["filename"] = header.Filename
	return payload
}

// applyCrop parses the optional crop_data form value. Malformed crop JSON
// is logged and ignored so the upload still succeeds on the full image.
func (s *Server) applyCrop(r *http.Request, img image.Image, filename string) image.Image {
	rawCrop := r.FormValue("crop_data")
	if rawCrop == "" {
		return img
	}
	rect, ok, err := imaging.ParseCrop(rawCrop)
	if err != nil {
		s.logger.Warn("invalid crop_data, using full image", "filename", filename, "error", err)
		return img
	}
	if !ok {
		return img
	}
	cropped, err := imaging.Crop(img, rect)
	if err != nil {
		s.logger.Warn("crop failed, using full image", "filename", filename, "error", err)
		return img
	}
	return cropped
}

// uploadPayload shapes the response for one processed image. An empty OCR
// result keeps status 200 but reports the error key alongside scan_id.
func uploadPayload(out *pipeline.Outcome) map[string]any {
	if out.OCR.Empty() {
		return map[string]any{
			"scan_id":        out.JobID.String(),
			"error":          "No text could be extracted from the image",
			"extracted_text": "",
			"analysis":       map[string]any{},
		}
	}
	return map[string]any{
		"scan_id":        out.JobID.String(),
		"extracted_text": out.OCR.Text,
		"analysis":       out.Analysis,
	}
}

func (s *Server) writeUploadParseError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
		return
	}
	s.logger.Warn("bad upload request", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form required"})
}

func (s *Server) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("scan failed", "path", r.URL.Path, "request_id", common.RequestIDFromContext(r.Context()), "error", err)
	writeJSON(w, common.HTTPStatus(err), map[string]string{"error": processErrorMessage(err)})
}

// processErrorMessage keeps API error strings user-facing. AppError carries
// the message the client should see; anything else gets the generic one.
func processErrorMessage(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Error processing image"
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/osoji/rxscan/internal/analysis"
	"github.com/osoji/rxscan/internal/common"
	"github.com/osoji/rxscan/internal/export"
	"github.com/osoji/rxscan/internal/imaging"
	"github.com/osoji/rxscan/internal/ocr"
	"github.com/osoji/rxscan/internal/pipeline"
	"github.com/osoji/rxscan/internal/repository"
)

type fakeEngine struct {
	mu      sync.Mutex
	res     ocr.ExtractionResult
	err     error
	gotPath string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, path string) (ocr.ExtractionResult, error) {
	f.mu.Lock()
	f.gotPath = path
	f.mu.Unlock()
	if f.err != nil {
		return ocr.ExtractionResult{}, f.err
	}
	return f.res, nil
}

func (f *fakeEngine) artifactPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotPath
}

func goodOCR() ocr.ExtractionResult {
	return ocr.ExtractionResult{
		Text:       "Amoxicillin 500mg three times daily for 7 days",
		Confidence: 0.91,
		Method:     "tesseract",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, engine ocr.Engine) *Server {
	t.Helper()
	db, err := repository.Open(context.Background(), common.DatabaseConfig{DSN: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	files := repository.NewFilesRepository(db, testLogger())
	jobs := repository.NewScanJobsRepository(db, testLogger())
	proc := pipeline.NewProcessor(
		pipeline.Config{ArtifactDir: t.TempDir()},
		files, jobs, engine, analysis.NewAnalyzer(), nil, testLogger(),
	)
	exporter := export.NewService(jobs, testLogger())
	return NewServer(common.ServerConfig{HTTPAddr: ":0", MaxUploadBytes: 8 << 20}, proc, jobs, exporter, db, testLogger())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type uploadPart struct {
	field    string
	filename string
	content  []byte
}

func multipartBody(t *testing.T, parts []uploadPart, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(p.content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(h http.Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestUploadImage(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)
	h := srv.Handler()

	body, ct := multipartBody(t, []uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}}, nil)
	rec := doRequest(h, http.MethodPost, "/upload_image/", ct, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rec, &resp)

	scanID, err := uuid.Parse(resp["scan_id"].(string))
	if err != nil {
		t.Fatalf("scan_id not a uuid: %v", resp["scan_id"])
	}
	if resp["extracted_text"] != goodOCR().Text {
		t.Errorf("extracted_text = %v", resp["extracted_text"])
	}
	meds := resp["analysis"].(map[string]any)["medications"].([]any)
	if len(meds) != 1 || meds[0] != "amoxicillin" {
		t.Errorf("medications = %v", meds)
	}

	// job row is queryable afterwards
	rec = doRequest(h, http.MethodGet, "/scans/"+scanID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get scan status = %d", rec.Code)
	}
	var job map[string]any
	decodeJSON(t, rec, &job)
	if job["status"] != "ANALYZED" {
		t.Errorf("job status = %v", job["status"])
	}
}

func TestUploadImageCropApplied(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)

	body, ct := multipartBody(t,
		[]uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}},
		map[string]string{"crop_data": `{"x":5,"y":5,"width":20,"height":10}`},
	)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	raw, err := os.ReadFile(engine.artifactPath())
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	img, _, err := imaging.Decode(raw)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("artifact bounds = %v, want 20x10 crop", b)
	}
}

func TestUploadImageMalformedCropIgnored(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)

	body, ct := multipartBody(t,
		[]uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}},
		map[string]string{"crop_data": `{"x": nope`},
	)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with crop skipped", rec.Code)
	}

	raw, err := os.ReadFile(engine.artifactPath())
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	img, _, err := imaging.Decode(raw)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("artifact bounds = %v, want full image", b)
	}
}

func TestUploadImageInvalidFile(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{res: goodOCR()})

	body, ct := multipartBody(t, []uploadPart{{"file", "junk.png", []byte("not an image")}}, nil)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["error"] != "Invalid image file" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestUploadImageMissingFileField(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{res: goodOCR()})

	body, ct := multipartBody(t, nil, map[string]string{"other": "x"})
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadImageEmptyOCR(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{res: ocr.ExtractionResult{}})

	body, ct := multipartBody(t, []uploadPart{{"file", "blank.png", pngBytes(t, 40, 20)}}, nil)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	if resp["error"] != "No text could be extracted from the image" {
		t.Errorf("error = %v", resp["error"])
	}
	if resp["extracted_text"] != "" {
		t.Errorf("extracted_text = %v", resp["extracted_text"])
	}
	if a := resp["analysis"].(map[string]any); len(a) != 0 {
		t.Errorf("analysis = %v, want empty object", a)
	}
}

func TestUploadImageOCRFailure(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{err: io.ErrUnexpectedEOF})

	body, ct := multipartBody(t, []uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}}, nil)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["error"] != "Error processing image" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestUploadImageTooLarge(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)
	srv.cfg.MaxUploadBytes = 1024

	// cap trips while the form is parsed, before any decode
	body, ct := multipartBody(t, []uploadPart{{"file", "big.png", bytes.Repeat([]byte("x"), 8192)}}, nil)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_image/", ct, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestUploadMultipleImages(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{res: goodOCR()})

	body, ct := multipartBody(t, []uploadPart{
		{"files", "one.png", pngBytes(t, 40, 20)},
		{"files", "bad.png", []byte("garbage")},
	}, nil)
	rec := doRequest(srv.Handler(), http.MethodPost, "/upload_multiple_images/", ct, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even with a bad file", rec.Code)
	}
	var results []map[string]any
	decodeJSON(t, rec, &results)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0]["filename"] != "one.png" || results[0]["extracted_text"] != goodOCR().Text {
		t.Errorf("first result = %v", results[0])
	}
	if results[1]["filename"] != "bad.png" || results[1]["error"] != "Invalid image file" {
		t.Errorf("second result = %v", results[1])
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})
	rec := doRequest(srv.Handler(), http.MethodGet, "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %q", resp["status"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})
	rec := doRequest(srv.Handler(), http.MethodOptions, "/upload_image/", "", nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}
}

func TestListScans(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)
	h := srv.Handler()

	body, ct := multipartBody(t, []uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}}, nil)
	if rec := doRequest(h, http.MethodPost, "/upload_image/", ct, body); rec.Code != http.StatusOK {
		t.Fatalf("seed upload failed: %d", rec.Code)
	}

	rec := doRequest(h, http.MethodGet, "/scans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Scans []map[string]any `json:"scans"`
		Count int              `json:"count"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Count != 1 || len(resp.Scans) != 1 {
		t.Fatalf("count = %d, scans = %d", resp.Count, len(resp.Scans))
	}
	if resp.Scans[0]["filename"] != "rx.png" {
		t.Errorf("filename = %v", resp.Scans[0]["filename"])
	}

	// status filter excludes the analyzed row
	rec = doRequest(h, http.MethodGet, "/scans?status=FAILED", "", nil)
	decodeJSON(t, rec, &resp)
	if resp.Count != 0 {
		t.Errorf("FAILED count = %d, want 0", resp.Count)
	}

	// malformed dates are rejected
	rec = doRequest(h, http.MethodGet, "/scans?from=March+1st", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad from date status = %d, want 400", rec.Code)
	}
}

func TestGetScanErrors(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{})
	h := srv.Handler()

	rec := doRequest(h, http.MethodGet, "/scans/not-a-uuid", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/scans/"+uuid.NewString(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	engine := &fakeEngine{res: goodOCR()}
	srv := newTestServer(t, engine)
	h := srv.Handler()

	body, ct := multipartBody(t, []uploadPart{{"file", "rx.png", pngBytes(t, 40, 20)}}, nil)
	if rec := doRequest(h, http.MethodPost, "/upload_image/", ct, body); rec.Code != http.StatusOK {
		t.Fatalf("seed upload failed: %d", rec.Code)
	}

	rec := doRequest(h, http.MethodGet, "/export.xlsx", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", got)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows("Scans")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[1][1] != "rx.png" {
		t.Errorf("exported filename = %q", rows[1][1])
	}
}

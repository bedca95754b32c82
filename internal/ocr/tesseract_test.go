package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type stubRunner struct {
	stdout  []byte
	stderr  []byte
	err     error
	gotName string
	gotArgs []string
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.gotName = name
	r.gotArgs = args
	return r.stdout, r.stderr, r.err
}

func tsvFixture(rows ...[]string) []byte {
	header := []string{"level", "page_num", "block_num", "par_num", "line_num", "word_num", "left", "top", "width", "height", "conf", "text"}
	out := []string{strings.Join(header, "\t")}
	for _, row := range rows {
		out = append(out, strings.Join(row, "\t"))
	}
	return []byte(strings.Join(out, "\n") + "\n")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTesseractRecognizeGroupsAndFilters(t *testing.T) {
	stdout := tsvFixture(
		[]string{"1", "1", "0", "0", "0", "0", "0", "0", "800", "600", "-1", ""},
		[]string{"5", "1", "1", "1", "1", "1", "50", "50", "120", "20", "96.5", "Amoxicillin"},
		[]string{"5", "1", "1", "1", "1", "2", "180", "50", "60", "20", "91.2", "500mg"},
		[]string{"5", "1", "1", "1", "2", "1", "50", "80", "100", "20", "38.0", "smudged"},
		[]string{"5", "1", "1", "2", "1", "1", "50", "120", "80", "20", "88.0", "twice"},
		[]string{"5", "1", "1", "2", "1", "2", "140", "120", "60", "20", "84.0", "daily"},
	)
	runner := &stubRunner{stdout: stdout}
	e := &tesseractEngine{cfg: Config{}.withDefaults(), runner: runner, logger: testLogger()}

	res, err := e.Recognize(context.Background(), "scan.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if want := "Amoxicillin 500mg\ntwice daily"; res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("kept %d lines, want 2 (low-confidence line must be dropped)", len(res.Lines))
	}
	if got := res.Lines[0].Text; got != "Amoxicillin 500mg" {
		t.Errorf("first line = %q", got)
	}
	if c := res.Lines[0].Confidence; math.Abs(c-0.9385) > 1e-9 {
		t.Errorf("first line confidence = %v, want 0.9385", c)
	}

	// box union of the two words on the first line
	first := res.Lines[0]
	if first.Left != 50 || first.Top != 50 || first.Width != 190 || first.Height != 20 {
		t.Errorf("first line box = (%d,%d %dx%d), want (50,50 190x20)",
			first.Left, first.Top, first.Width, first.Height)
	}

	meanKept := (0.9385 + 0.86) / 2
	wantConf := 0.7*meanKept + 0.3*heuristicConfidence(res.Text)
	if math.Abs(res.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v", res.Confidence, wantConf)
	}
	if res.Method != "tesseract" || res.Language != "eng" {
		t.Errorf("method/language = %q/%q", res.Method, res.Language)
	}
}

func TestTesseractArgs(t *testing.T) {
	runner := &stubRunner{stdout: tsvFixture()}
	cfg := Config{
		Tesseract:   "/opt/tess/bin/tesseract",
		Language:    "eng+deu",
		TessdataDir: "/opt/tessdata",
		PSM:         6,
		OEM:         1,
		DPI:         200,
	}.withDefaults()
	e := &tesseractEngine{cfg: cfg, runner: runner, logger: testLogger()}

	if _, err := e.Recognize(context.Background(), "in.png"); err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if runner.gotName != "/opt/tess/bin/tesseract" {
		t.Errorf("cmd = %q", runner.gotName)
	}
	want := []string{"in.png", "stdout", "-l", "eng+deu", "--psm", "6", "--oem", "1", "--tessdata-dir", "/opt/tessdata", "--dpi", "200", "tsv"}
	if !reflect.DeepEqual(runner.gotArgs, want) {
		t.Errorf("args = %v, want %v", runner.gotArgs, want)
	}
}

func TestTesseractEmptyOutput(t *testing.T) {
	runner := &stubRunner{stdout: tsvFixture()}
	e := &tesseractEngine{cfg: Config{}.withDefaults(), runner: runner, logger: testLogger()}

	res, err := e.Recognize(context.Background(), "blank.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !res.Empty() {
		t.Errorf("Empty() = false for blank page, result %+v", res)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 for empty text", res.Confidence)
	}
}

func TestTesseractRunError(t *testing.T) {
	runner := &stubRunner{stderr: []byte("boom"), err: errors.New("exit status 1")}
	e := &tesseractEngine{cfg: Config{}.withDefaults(), runner: runner, logger: testLogger()}

	res, err := e.Recognize(context.Background(), "bad.png")
	if err == nil {
		t.Fatal("Recognize() error = nil, want failure")
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "boom") {
		t.Errorf("warnings = %v, want stderr captured", res.Warnings)
	}
}

func TestParseTSVWordsSkipsMalformed(t *testing.T) {
	raw := tsvFixture(
		[]string{"5", "1", "1", "1", "1", "1", "10", "10", "30", "12", "90.0", "keep"},
		[]string{"5", "1", "1", "1", "1", "2", "50", "10", "30", "12", "-1", "structural"},
		[]string{"4", "1", "1", "1", "2", "0", "10", "30", "90", "12", "95.0", "line-row"},
		[]string{"5", "1", "1", "1", "2", "1", "10", "30", "30", "12", "88.0", ""},
		[]string{"not-a-row"},
	)
	words := parseTSVWords(raw)
	if len(words) != 1 || words[0].text != "keep" {
		t.Errorf("parseTSVWords = %+v, want just the %q row", words, "keep")
	}
}

func TestNewEngineSelection(t *testing.T) {
	if _, err := NewEngine(Config{Engine: "nope"}, testLogger()); err == nil {
		t.Error("NewEngine(nope) error = nil, want failure")
	}
	e, err := NewEngine(Config{}, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if e.Name() != "tesseract" {
		t.Errorf("default engine = %q, want tesseract", e.Name())
	}
}

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestTesseractEngineEndToEnd(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 320, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Amoxicillin 500mg daily")

	var buf bytes.Buffer
	if err := (&png.Encoder{}).Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rx.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}

	e, err := NewEngine(Config{LineConfidence: 0.05}, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	res, err := e.Recognize(context.Background(), path)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	got := strings.ToLower(res.Text)
	if !strings.Contains(got, "amoxicillin") {
		t.Fatalf("unexpected OCR output: %q", res.Text)
	}
	for _, ln := range res.Lines {
		if ln.Confidence < 0 || ln.Confidence > 1 {
			t.Errorf("line confidence %v out of range", ln.Confidence)
		}
	}
}

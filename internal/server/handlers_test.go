package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/submission"
)

// writeMaskFile writes a w x h gray image whose pixels inside r are white.
func writeMaskFile(t *testing.T, dir, name string, w, h int, r image.Rectangle) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := imaging.Encode(f, img, imaging.FormatPNG); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	return path
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args interface{}, out interface{}) *MCPResponse {
	t.Helper()
	paramsJSON, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil || out == nil {
		return resp
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), out); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
	return resp
}

func TestHandleToolsCall_RLEEncode(t *testing.T) {
	s := newTestServer(t)
	// Column-major 1-based: (row 1..3, col 1) is pixels 6..8 of a 4x4 mask.
	path := writeMaskFile(t, t.TempDir(), "m.png", 4, 4, image.Rect(1, 1, 2, 4))

	var res rleEncodeResult
	resp := callTool(t, s, "rle_encode", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if res.RLE != "6 3" {
		t.Errorf("RLE: got %q, want \"6 3\"", res.RLE)
	}
	if res.Pixels != 3 || res.Height != 4 || res.Width != 4 {
		t.Errorf("got %+v", res)
	}
}

func TestHandleToolsCall_RLEDecode(t *testing.T) {
	s := newTestServer(t)

	var preview rleDecodeResult
	resp := callTool(t, s, "rle_decode", map[string]interface{}{"rle": "6 3", "height": 4, "width": 4}, &preview)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if preview.Pixels != 3 || preview.Runs != 1 {
		t.Errorf("got %+v", preview)
	}
	if preview.Image == nil || preview.Image.MimeType != "image/png" {
		t.Error("expected a PNG preview")
	}

	out := filepath.Join(t.TempDir(), "decoded.bmp")
	var saved rleDecodeResult
	resp = callTool(t, s, "rle_decode", map[string]interface{}{"rle": "6 3", "height": 4, "width": 4, "out_path": out}, &saved)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	m, err := imaging.LoadMask(out)
	if err != nil {
		t.Fatalf("LoadMask failed: %v", err)
	}
	if !m.At(1, 1) || !m.At(3, 1) || m.At(0, 1) || m.Count() != 3 {
		t.Error("decoded mask does not match the runs")
	}
}

func TestHandleToolsCall_RLEDecode_Invalid(t *testing.T) {
	s := newTestServer(t)
	for _, rle := range []string{"6", "0 3", "15 3", "a b"} {
		resp := callTool(t, s, "rle_decode", map[string]interface{}{"rle": rle, "height": 4, "width": 4}, nil)
		if resp.Error == nil || resp.Error.Code != -32602 {
			t.Errorf("rle %q: expected invalid params, got %+v", rle, resp.Error)
		}
	}

	resp := callTool(t, s, "rle_decode", map[string]interface{}{"rle": "1 3", "height": -1, "width": 4}, nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("invalid shape: expected invalid params, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_SubmissionEncode(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	low := writeMaskFile(t, dir, "low.png", 4, 4, image.Rect(0, 0, 2, 4))
	high := writeMaskFile(t, dir, "high.png", 4, 4, image.Rect(0, 0, 1, 4))

	var res submissionEncodeResult
	resp := callTool(t, s, "submission_encode", map[string]interface{}{
		"image_id": "img",
		"masks":    []string{low, high},
		"scores":   []float64{0.4, 0.9},
		"save":     true,
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	want := []string{"img, 1 4", "img, 5 4"}
	if strings.Join(res.Lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines: got %q, want %q", res.Lines, want)
	}
	if !strings.HasPrefix(res.Path, s.cfg.Submission.ResultsDir) {
		t.Errorf("path %s is not under the results dir", res.Path)
	}

	var records []submission.Record
	resp = callTool(t, s, "submission_read", map[string]interface{}{"path": res.Path}, &records)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if len(records) != 2 || records[1].RLE != "5 4" {
		t.Errorf("records: got %+v", records)
	}
}

func TestHandleToolsCall_SubmissionEncode_Invalid(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "submission_encode", map[string]interface{}{
		"image_id": "img",
		"masks":    []string{"a.png"},
		"scores":   []float64{},
	}, nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_TilePlan(t *testing.T) {
	s := newTestServer(t)

	var res tilePlanResult
	resp := callTool(t, s, "tile_plan", map[string]interface{}{"width": 600, "height": 600, "size": 512, "overlap": 64}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if len(res.Tiles) != 4 {
		t.Fatalf("got %d tiles, want 4", len(res.Tiles))
	}
	last := res.Tiles[3]
	if last.Box.Left != 448 || last.ClippedWidth != 152 || last.ClippedHeight != 152 {
		t.Errorf("last tile: got %+v", last)
	}

	resp = callTool(t, s, "tile_plan", map[string]interface{}{"width": 600, "height": 600, "size": 64, "overlap": 64}, nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("overlap equal to size: expected invalid params, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_Partition(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	imgPath := writeMaskFile(t, dir, "img.png", 8, 8, image.Rect(0, 0, 8, 8))
	masks := filepath.Join(dir, "masks")
	writeMaskFile(t, masks, "a.png", 8, 8, image.Rect(0, 0, 4, 2))
	writeMaskFile(t, masks, "magnetic_masks/b.png", 8, 8, image.Rect(4, 4, 5, 8))

	var res struct {
		Considered   int    `json:"considered"`
		Retained     int    `json:"retained"`
		MasksWritten int    `json:"masks_written"`
		Out          string `json:"out"`
	}
	resp := callTool(t, s, "partition", map[string]interface{}{
		"image_path": imgPath,
		"masks_dir":  masks,
		"size":       4,
		"workers":    2,
	}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if res.Considered != 4 || res.Retained != 2 || res.MasksWritten != 2 {
		t.Errorf("got %+v", res)
	}
	for _, p := range []string{
		"section-0/tissue_masks/section-0-mask-0.png",
		"section-3/magnetic_masks/section-3-mask-0.png",
	} {
		if _, err := os.Stat(filepath.Join(res.Out, p)); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

func TestHandleToolsCall_Partition_Invalid(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "partition", map[string]interface{}{"masks_dir": "x"}, nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
	resp = callTool(t, s, "partition", map[string]interface{}{"image_path": "/missing.png", "masks_dir": "x", "format": "svg"}, nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected invalid params for format, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_ImageDimensions(t *testing.T) {
	s := newTestServer(t)
	path := writeMaskFile(t, t.TempDir(), "d.png", 30, 20, image.Rect(0, 0, 1, 1))

	var dims imaging.DimensionsResult
	resp := callTool(t, s, "image_dimensions", map[string]interface{}{"path": path}, &dims)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if dims.Width != 30 || dims.Height != 20 {
		t.Errorf("got %dx%d, want 30x20", dims.Width, dims.Height)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "image_ocr_full", map[string]interface{}{}, nil)
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Errorf("expected tool error, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %+v", resp.Error)
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/mask-tools/internal/imaging"
	"github.com/ironsheep/mask-tools/internal/rle"
	"github.com/ironsheep/mask-tools/internal/submission"
	"github.com/ironsheep/mask-tools/internal/tiling"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "rle_encode", "partition").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// errInvalidArgs marks argument errors so they map to -32602.
type errInvalidArgs struct{ err error }

func (e errInvalidArgs) Error() string { return e.err.Error() }
func (e errInvalidArgs) Unwrap() error { return e.err }

// isInvalidArgs reports whether err was caused by the caller's arguments
// rather than by the tool itself: undecodable arguments, malformed RLE and
// tiling parameters that cannot produce a tiling.
func isInvalidArgs(err error) bool {
	var invalid errInvalidArgs
	return errors.As(err, &invalid) || errors.Is(err, rle.ErrFormat) || errors.Is(err, tiling.ErrConfig)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errInvalidArgs{err}
	}
	return nil
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if isInvalidArgs(err) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Encoding
	case "rle_encode":
		return s.handleRLEEncode(args)
	case "rle_decode":
		return s.handleRLEDecode(args)
	case "submission_encode":
		return s.handleSubmissionEncode(args)
	case "submission_read":
		return s.handleSubmissionRead(args)

	// Tiling
	case "image_dimensions":
		return s.handleImageDimensions(args)
	case "tile_plan":
		return s.handleTilePlan(args)
	case "partition":
		return s.handlePartition(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Encoding Handlers ===

type pathArgs struct {
	Path string `json:"path"`
}

type rleEncodeResult struct {
	Height int    `json:"height"`
	Width  int    `json:"width"`
	Pixels int    `json:"pixels"`
	RLE    string `json:"rle"`
}

func (s *Server) handleRLEEncode(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	m, err := imaging.LoadMask(a.Path)
	if err != nil {
		return nil, err
	}
	return &rleEncodeResult{
		Height: m.Height,
		Width:  m.Width,
		Pixels: m.Count(),
		RLE:    rle.Encode(m),
	}, nil
}

type rleDecodeArgs struct {
	RLE     string `json:"rle"`
	Height  int    `json:"height"`
	Width   int    `json:"width"`
	OutPath string `json:"out_path"`
}

type rleDecodeResult struct {
	Pixels  int                 `json:"pixels"`
	Runs    int                 `json:"runs"`
	OutPath string              `json:"out_path,omitempty"`
	Image   *imaging.CropResult `json:"image,omitempty"`
}

func (s *Server) handleRLEDecode(args json.RawMessage) (interface{}, error) {
	var a rleDecodeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	m, err := rle.Decode(a.RLE, a.Height, a.Width)
	if err != nil {
		return nil, err
	}
	runs, err := rle.ParseRuns(a.RLE)
	if err != nil {
		return nil, err
	}
	res := &rleDecodeResult{Pixels: m.Count(), Runs: len(runs)}

	if a.OutPath == "" {
		res.Image, err = imaging.EncodePNGBase64(m.ToImage())
		return res, err
	}
	f, err := imaging.ParseFormat(filepath.Ext(a.OutPath))
	if err != nil {
		return nil, err
	}
	out, err := os.Create(a.OutPath)
	if err != nil {
		return nil, err
	}
	if err := imaging.Encode(out, m.ToImage(), f); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	res.OutPath = a.OutPath
	return res, nil
}

type submissionEncodeArgs struct {
	ImageID string    `json:"image_id"`
	Masks   []string  `json:"masks"`
	Scores  []float64 `json:"scores"`
	Save    bool      `json:"save"`
}

type submissionEncodeResult struct {
	Lines []string `json:"lines"`
	Path  string   `json:"path,omitempty"`
}

func (s *Server) handleSubmissionEncode(args json.RawMessage) (interface{}, error) {
	var a submissionEncodeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ImageID == "" {
		return nil, errInvalidArgs{fmt.Errorf("image_id is required")}
	}
	if len(a.Masks) != len(a.Scores) {
		return nil, errInvalidArgs{fmt.Errorf("got %d masks but %d scores", len(a.Masks), len(a.Scores))}
	}

	instances := make([]submission.Instance, len(a.Masks))
	for i, p := range a.Masks {
		m, err := imaging.LoadMask(p)
		if err != nil {
			return nil, err
		}
		instances[i] = submission.Instance{Mask: m, Score: a.Scores[i]}
	}
	lines, err := submission.EncodeImage(a.ImageID, instances)
	if err != nil {
		return nil, err
	}

	res := &submissionEncodeResult{Lines: lines}
	if a.Save {
		res.Path, err = submission.Save(s.cfg.Submission.ResultsDir, time.Now(), lines)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Server) handleSubmissionRead(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return submission.Read(f)
}

// === Tiling Handlers ===

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

type tilePlanArgs struct {
	Path    string `json:"path"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Size    *int   `json:"size"`
	Overlap *int   `json:"overlap"`
}

type plannedTile struct {
	tiling.Tile
	ClippedWidth  int `json:"clipped_width"`
	ClippedHeight int `json:"clipped_height"`
}

type tilePlanResult struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Size    int           `json:"size"`
	Overlap int           `json:"overlap"`
	Tiles   []plannedTile `json:"tiles"`
}

func (s *Server) handleTilePlan(args json.RawMessage) (interface{}, error) {
	var a tilePlanArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path != "" {
		dims, err := imaging.GetDimensions(s.cache, a.Path)
		if err != nil {
			return nil, err
		}
		a.Width, a.Height = dims.Width, dims.Height
	}
	size, overlap := s.cfg.Tiling.Size, s.cfg.Tiling.Overlap
	if a.Size != nil {
		size = *a.Size
	}
	if a.Overlap != nil {
		overlap = *a.Overlap
	}

	tiles, err := tiling.Boxes(a.Width, a.Height, size, overlap)
	if err != nil {
		return nil, err
	}
	res := &tilePlanResult{Width: a.Width, Height: a.Height, Size: size, Overlap: overlap}
	for _, t := range tiles {
		r := t.Box.Clip(a.Width, a.Height)
		res.Tiles = append(res.Tiles, plannedTile{Tile: t, ClippedWidth: r.Dx(), ClippedHeight: r.Dy()})
	}
	return res, nil
}

type partitionArgs struct {
	ImagePath string `json:"image_path"`
	MasksDir  string `json:"masks_dir"`
	Out       string `json:"out"`
	Size      *int   `json:"size"`
	Overlap   *int   `json:"overlap"`
	Format    string `json:"format"`
	Workers   int    `json:"workers"`
	FailFast  *bool  `json:"fail_fast"`
}

type partitionResult struct {
	*tiling.Report
	Out      string   `json:"out"`
	Failures []string `json:"failures,omitempty"`
}

func (s *Server) handlePartition(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a partitionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ImagePath == "" {
		return nil, errInvalidArgs{fmt.Errorf("image_path is required")}
	}

	opts := tiling.Options{
		Out:      s.cfg.Tiling.Out,
		Size:     s.cfg.Tiling.Size,
		Overlap:  s.cfg.Tiling.Overlap,
		Format:   s.cfg.ImageFormat(),
		Workers:  s.cfg.Tiling.Workers,
		FailFast: s.cfg.Tiling.FailFast,
	}
	if a.Out != "" {
		opts.Out = a.Out
	}
	if a.Size != nil {
		opts.Size = *a.Size
	}
	if a.Overlap != nil {
		opts.Overlap = *a.Overlap
	}
	if a.Format != "" {
		f, err := imaging.ParseFormat(a.Format)
		if err != nil {
			return nil, errInvalidArgs{err}
		}
		opts.Format = f
	}
	if a.Workers > 0 {
		opts.Workers = a.Workers
	}
	if a.FailFast != nil {
		opts.FailFast = *a.FailFast
	}

	src, err := tiling.LoadSource(a.ImagePath, a.MasksDir, s.cfg.Tiling.DefaultClass)
	if err != nil {
		return nil, err
	}
	report, err := tiling.NewWriter(opts, s.log).Run(ctx, src)
	if err != nil {
		return nil, err
	}

	res := &partitionResult{Report: report, Out: opts.Out}
	for _, f := range report.Failures {
		res.Failures = append(res.Failures, f.Error())
	}
	return res, nil
}

package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Encoding
		{
			Name:        "rle_encode",
			Description: "Binarize a mask image and encode it as a run-length string (column-major, 1-based starts, space-separated start/length pairs).",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Absolute path to the mask image"),
			}, "path"),
		},
		{
			Name:        "rle_decode",
			Description: "Decode a run-length string into a height x width mask. Writes the mask to out_path when given, otherwise returns it as a base64 PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"rle":      prop("string", "Run-length string, e.g. \"6 3 12 2\""),
				"height":   prop("integer", "Mask height in pixels"),
				"width":    prop("integer", "Mask width in pixels"),
				"out_path": prop("string", "Optional path of the mask file to write; the extension selects the format"),
			}, "rle", "height", "width"),
		},
		{
			Name:        "submission_encode",
			Description: "Merge the instance masks predicted for one image into submission lines. Higher-scored instances claim overlapping pixels first; an image without surviving instances yields a single \"<id>,\" line.",
			InputSchema: objectSchema(map[string]interface{}{
				"image_id": prop("string", "Image identifier written in the first column"),
				"masks": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Absolute paths of the instance mask images, all of the same size",
				},
				"scores": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "number"},
					"description": "Confidence score of each mask, aligned with masks",
				},
				"save": prop("boolean", "Also write the lines to a new submit_<timestamp>/submit.csv under the results directory"),
			}, "image_id", "masks", "scores"),
		},
		{
			Name:        "submission_read",
			Description: "Parse a submission file and return its records.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Absolute path to the submission CSV"),
			}, "path"),
		},

		// Tiling
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Absolute path to the image file"),
			}, "path"),
		},
		{
			Name:        "tile_plan",
			Description: "List the tile boxes covering an image without writing anything. Give either path or width and height.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":    prop("string", "Optional image whose size is used"),
				"width":   prop("integer", "Image width when no path is given"),
				"height":  prop("integer", "Image height when no path is given"),
				"size":    prop("integer", "Tile edge length in pixels (default from configuration)"),
				"overlap": prop("integer", "Overlap between neighbouring tiles in pixels (default from configuration)"),
			}),
		},
		{
			Name:        "partition",
			Description: "Cut an image and its instance masks into square tiles, keep the tiles whose mask coverage is at least 20% and not uniform, and write them as section-<i> directories.",
			InputSchema: objectSchema(map[string]interface{}{
				"image_path": prop("string", "Absolute path to the source image"),
				"masks_dir":  prop("string", "Directory of mask files; <class>_masks subdirectories select the class"),
				"out":        prop("string", "Output root (default from configuration)"),
				"size":       prop("integer", "Tile edge length in pixels"),
				"overlap":    prop("integer", "Overlap between neighbouring tiles in pixels"),
				"format":     prop("string", "Output format: png, jpeg, gif, tiff, bmp or webp"),
				"workers":    prop("integer", "Number of tiles written concurrently"),
				"fail_fast":  prop("boolean", "Abort on the first tile that cannot be written"),
			}, "image_path", "masks_dir"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

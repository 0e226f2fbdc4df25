package handlers

import "github.com/Brownie44l1/route-grader/internal/holds"

// RouteInput is the body of POST /api/upload.
type RouteInput struct {
	ImageURL  string `json:"image_url"`
	HoldColor string `json:"hold_color"`
}

// HoldsInput is the body of POST /api/predict/holds.
type HoldsInput struct {
	WallWidth  int          `json:"wall_width"`
	WallHeight int          `json:"wall_height"`
	Holds      []holds.Hold `json:"holds"`
}

// GradePrediction is returned by every prediction endpoint.
type GradePrediction struct {
	Grade      string  `json:"grade"`
	Confidence float64 `json:"confidence"`
	RouteID    string  `json:"route_id,omitempty"`
	NumHolds   int     `json:"num_holds"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

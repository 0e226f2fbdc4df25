package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/route-grader/internal/fetch"
	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/route"
	"github.com/Brownie44l1/route-grader/internal/service"
)

const maxJSONBody = 32 << 20

type Handler struct {
	predictor service.Predictor
	loader    *fetch.Loader
	store     route.Store
	logger    *zap.SugaredLogger
	newID     func() string
	now       func() time.Time
}

// NewHandler returns a Handler. store may be nil, in which case predictions are not
// recorded.
func NewHandler(predictor service.Predictor, loader *fetch.Loader, store route.Store, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		predictor: predictor,
		loader:    loader,
		store:     store,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", h.Root)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/api/upload", h.Upload)
	mux.HandleFunc("/predict/image", h.PredictFromImage)
	mux.HandleFunc("/api/predict/holds", h.PredictHolds)
	mux.HandleFunc("/api/routes", h.ListRoutes)
	return h.logRequests(mux)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status":  "online",
		"message": "Route grade predictor API is running",
	}, http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// Upload grades the route in a photo referenced by URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RouteInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" || strings.TrimSpace(req.HoldColor) == "" {
		respondError(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	color, err := holds.CanonicalColor(req.HoldColor)
	if err != nil {
		respondError(w, fmt.Sprintf("Unknown hold color %q, expected one of %s",
			req.HoldColor, strings.Join(holds.Colors(), ", ")), http.StatusBadRequest)
		return
	}
	h.logger.Infow("upload", "image_url", imageRef(req.ImageURL), "hold_color", color)

	img, err := h.loader.Load(r.Context(), req.ImageURL)
	if err != nil {
		h.logger.Warnw("failed to load image", "error", err)
		respondError(w, fmt.Sprintf("Failed to load image: %v", err), http.StatusBadRequest)
		return
	}

	h.predict(r.Context(), w, img, color, imageRef(req.ImageURL))
}

// PredictFromImage grades the route in an uploaded photo.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if strings.TrimSpace(r.FormValue("hold_color")) == "" {
		respondError(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	color, err := holds.CanonicalColor(r.FormValue("hold_color"))
	if err != nil {
		respondError(w, fmt.Sprintf("Unknown hold color %q, expected one of %s",
			r.FormValue("hold_color"), strings.Join(holds.Colors(), ", ")), http.StatusBadRequest)
		return
	}

	h.logger.Infow("received file", "name", header.Filename, "bytes", header.Size, "hold_color", color)

	img, err := h.loader.Decode(file)
	if err != nil {
		respondError(w, "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, WebP", http.StatusBadRequest)
		return
	}

	h.predict(r.Context(), w, img, color, header.Filename)
}

// PredictHolds grades a route from holds that were already extracted.
func (h *Handler) PredictHolds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req HoldsInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	wall := holds.Wall{Width: req.WallWidth, Height: req.WallHeight}
	if wall.Width <= 0 || wall.Height <= 0 {
		respondError(w, "wall_width and wall_height must be positive", http.StatusBadRequest)
		return
	}

	pred, err := h.predictor.PredictHolds(r.Context(), req.Holds, wall)
	if err != nil {
		h.respondPredictionError(w, err)
		return
	}
	respondJSON(w, GradePrediction{
		Grade:      pred.Grade,
		Confidence: pred.Confidence,
		NumHolds:   len(req.Holds),
	}, http.StatusOK)
}

// ListRoutes lists the recorded routes.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		respondJSON(w, []route.Route{}, http.StatusOK)
		return
	}
	routes, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Errorw("list routes", "error", err)
		respondError(w, "Failed to list routes", http.StatusInternalServerError)
		return
	}
	respondJSON(w, routes, http.StatusOK)
}

func (h *Handler) predict(ctx context.Context, w http.ResponseWriter, img image.Image, color, ref string) {
	pred, err := h.predictor.Predict(ctx, img, color)
	if err != nil {
		h.respondPredictionError(w, err)
		return
	}

	resp := GradePrediction{
		Grade:      pred.Grade,
		Confidence: pred.Confidence,
		RouteID:    h.newID(),
		NumHolds:   len(pred.Holds),
	}
	h.record(ctx, resp.RouteID, ref, color, pred)
	respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) record(ctx context.Context, id, ref, color string, pred *service.Prediction) {
	if h.store == nil {
		return
	}
	rt := route.New(id, ref, color, pred.Wall, pred.Holds, pred.Grade)
	created := h.now().UTC()
	rt.CreatedAt = &created
	// a client hanging up after the prediction must not lose the record
	if err := h.store.Append(context.WithoutCancel(ctx), rt); err != nil {
		h.logger.Errorw("failed to record route", "route_id", id, "error", err)
	}
}

func (h *Handler) respondPredictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoHolds):
		respondError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, holds.ErrUnknownColor):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Errorw("prediction error", "error", err)
		respondError(w, fmt.Sprintf("Error predicting grade: %v", err), http.StatusInternalServerError)
	}
}

// imageRef shortens inline images so they are not logged or stored whole.
func imageRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		header, _, _ := strings.Cut(ref, ",")
		return header
	}
	return ref
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, errorResponse{Detail: message}, status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debugw("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "took", time.Since(start))
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/leaf-api/internal/history"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/postprocess"
	"github.com/Brownie44l1/leaf-api/internal/predict"
)

// Predictor is the prediction pipeline. *predict.Service satisfies it.
type Predictor interface {
	PredictImage(ctx context.Context, data []byte) (*predict.Result, error)
	PredictTensor(ctx context.Context, input []float32) (*predict.Result, error)
}

type Handler struct {
	predictor Predictor
	ledger    *history.Ledger
	maxUpload int64
	listLimit int
}

func NewHandler(predictor Predictor, ledger *history.Ledger, maxUploadBytes int64, listLimit int) *Handler {
	if listLimit <= 0 || listLimit > history.DefaultListLimit {
		listLimit = history.DefaultListLimit
	}
	return &Handler{
		predictor: predictor,
		ledger:    ledger,
		maxUpload: maxUploadBytes,
		listLimit: listLimit,
	}
}

type predictResponse struct {
	Success    bool                    `json:"success"`
	Prediction *postprocess.Prediction `json:"prediction"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict classifies the multipart "image" upload.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	zerolog.Ctx(r.Context()).Debug().
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("received image")

	result, err := h.predictor.PredictImage(r.Context(), data)
	if err != nil {
		h.predictFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Success: true, Prediction: result.Prediction})
}

// PredictRaw classifies a preprocessed tensor sent as JSON.
func (h *Handler) PredictRaw(w http.ResponseWriter, r *http.Request) {
	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := h.predictor.PredictTensor(r.Context(), req.Image)
	if err != nil {
		h.predictFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Success: true, Prediction: result.Prediction})
}

func (h *Handler) predictFailed(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, predict.ErrInvalidInput):
		log.Info().Err(err).Msg("rejected prediction input")
		writeFailure(w, http.StatusBadRequest, invalidInputMessage(err))
	case errors.Is(err, history.ErrStorageUnavailable):
		log.Error().Err(err).Msg("prediction not recorded")
		writeFailure(w, http.StatusServiceUnavailable, "history storage unavailable")
	default:
		log.Error().Err(err).Msg("prediction failed")
		writeFailure(w, http.StatusInternalServerError, "prediction failed")
	}
}

func invalidInputMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidImage):
		return "Invalid image format. Supported: JPEG, PNG, GIF"
	case errors.Is(err, model.ErrInvalidTensor):
		return "Input tensor has the wrong size"
	default:
		return "Invalid request"
	}
}

// ListHistory returns the most recent entries, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := h.listLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	entries, err := h.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list history")
		writeFailure(w, http.StatusServiceUnavailable, "history storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// DeleteHistory removes one entry by its path id.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Entry ID must be an integer.")
		return
	}

	err = h.ledger.DeleteByID(r.Context(), id)
	var notFound *history.NotFoundError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: fmt.Sprintf("Deleted entry ID %d.", id)})
	case errors.As(err, &notFound):
		writeFailure(w, http.StatusNotFound, notFound.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Int64("id", id).Msg("delete history")
		writeFailure(w, http.StatusServiceUnavailable, "history storage unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureResponse{Success: false, Error: message})
}

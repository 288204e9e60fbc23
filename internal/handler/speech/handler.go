package speech

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
	"github.com/zhouzirui/spatial-agent/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Handler exposes the transcription and synthesis adapters over plain HTTP,
// for probing them outside a session.
type Handler struct {
	transcriber pipeline.Transcriber
	synthesizer pipeline.Synthesizer
	voice       string
	log         *zap.Logger
}

// New builds the speech probe handler. voice is used when a request names none.
func New(transcriber pipeline.Transcriber, synthesizer pipeline.Synthesizer, voice string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		transcriber: transcriber,
		synthesizer: synthesizer,
		voice:       voice,
		log:         log.Named("speech"),
	}
}

// RegisterRoutes mounts the probes under /speech.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// handleTranscribe takes a multipart "audio" file and returns its transcript.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio file is empty or unreadable")
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}

	text, err := h.transcriber.Transcribe(r.Context(), pipeline.Audio{Data: data, Format: format})
	if err != nil {
		h.log.Warn("transcription failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcribeResponse{Text: text})
}

// handleSynthesize takes {"text", "voice"} and returns the audio bytes.
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = h.voice
	}

	audio, err := h.synthesizer.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		h.log.Warn("synthesis failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech.wav")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.log.Debug("failed to write audio response", zap.Error(err))
	}
}

// handleHealth reports that the speech routes are mounted.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}

// inferAudioFormat guesses the container from the upload file name, defaulting to wav.
func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return codec.FormatMP3
	case ".wav":
		return codec.FormatWAV
	case ".ogg", ".oga":
		return codec.FormatOGG
	case ".webm":
		return codec.FormatWebM
	default:
		return codec.FormatWAV
	}
}

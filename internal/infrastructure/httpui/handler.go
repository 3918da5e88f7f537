// Package httpui exposes the session commands and the rendered canvas over
// HTTP, the thin UI adapter for headless clients.
package httpui

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/nnvisu/nnvisu-go/internal/application/controller"
	"github.com/nnvisu/nnvisu-go/internal/application/history"
	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/logging"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Session is the command surface of the session controller.
type Session interface {
	View() controller.View
	StartTraining() error
	StopTraining() error
	ToggleTraining() error
	ResetModel() error
	SetConfig(patch controller.ConfigPatch) error
	ClearPoints() error
	PointerDown(px, py float64) error
	PointerMove(px, py float64) error
	SetTool(tool shared.Tool) error
	SetClass(class int) error
	GenerateData(distribution protocol.Distribution, numClasses int) error
	Seek(index int) error
}

// HistoryLister lists recorded snapshots.
type HistoryLister interface {
	List() []history.Summary
}

// FrameSource encodes the latest rendered frame.
type FrameSource interface {
	WritePNG(w io.Writer) error
}

// PointerRequest is the body of POST /pointer.
type PointerRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Action string  `json:"action"`
}

// GenerateRequest is the body of POST /data/generate.
type GenerateRequest struct {
	Distribution protocol.Distribution `json:"distribution"`
	NumClasses   int                   `json:"num_classes"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handler serves the HTTP routes.
type Handler struct {
	logger  hclog.Logger
	session Session
	history HistoryLister
	frames  FrameSource
	logs    *logging.Ring
}

// NewHandler creates a Handler. history, frames and logs may be nil; their
// routes then answer 404.
func NewHandler(logger hclog.Logger, session Session, history HistoryLister, frames FrameSource, logs *logging.Ring) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		logger:  logger,
		session: session,
		history: history,
		frames:  frames,
		logs:    logs,
	}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/canvas.png", h.Canvas).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/training/start", h.command(h.session.StartTraining)).Methods(http.MethodPost)
	r.HandleFunc("/training/stop", h.command(h.session.StopTraining)).Methods(http.MethodPost)
	r.HandleFunc("/training/toggle", h.command(h.session.ToggleTraining)).Methods(http.MethodPost)
	r.HandleFunc("/model/reset", h.command(h.session.ResetModel)).Methods(http.MethodPost)
	r.HandleFunc("/config", h.SetConfig).Methods(http.MethodPost)
	r.HandleFunc("/points/clear", h.command(h.session.ClearPoints)).Methods(http.MethodPost)
	r.HandleFunc("/pointer", h.Pointer).Methods(http.MethodPost)
	r.HandleFunc("/tool/{tool}", h.SetTool).Methods(http.MethodPut)
	r.HandleFunc("/class/{class}", h.SetClass).Methods(http.MethodPut)
	r.HandleFunc("/data/generate", h.GenerateData).Methods(http.MethodPost)
	r.HandleFunc("/history", h.History).Methods(http.MethodGet)
	r.HandleFunc("/history/{index}/seek", h.Seek).Methods(http.MethodPost)
	r.HandleFunc("/logs", h.Logs).Methods(http.MethodGet)
	return r
}

// Canvas writes the latest frame as PNG.
func (h *Handler) Canvas(rw http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		h.fail(rw, http.StatusNotFound, errors.New("rendering disabled"))
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	rw.Header().Set("Cache-Control", "no-store")
	if err := h.frames.WritePNG(rw); err != nil {
		h.logger.Error("error encoding frame", "error", err)
	}
}

// Status writes the current view.
func (h *Handler) Status(rw http.ResponseWriter, r *http.Request) {
	h.ok(rw, h.session.View())
}

func (h *Handler) command(fn func() error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			h.failFor(rw, err)
			return
		}
		h.ok(rw, h.session.View())
	}
}

// SetConfig applies a JSON config patch.
func (h *Handler) SetConfig(rw http.ResponseWriter, r *http.Request) {
	patch := controller.ConfigPatch{}
	if err := fromJSON(&patch, r.Body); err != nil {
		h.fail(rw, http.StatusBadRequest, err)
		return
	}
	if err := h.session.SetConfig(patch); err != nil {
		h.failFor(rw, err)
		return
	}
	h.ok(rw, h.session.View())
}

// Pointer forwards a pointer event in canvas pixels.
func (h *Handler) Pointer(rw http.ResponseWriter, r *http.Request) {
	req := PointerRequest{}
	if err := fromJSON(&req, r.Body); err != nil {
		h.fail(rw, http.StatusBadRequest, err)
		return
	}

	var err error
	switch req.Action {
	case "down", "":
		err = h.session.PointerDown(req.X, req.Y)
	case "move":
		err = h.session.PointerMove(req.X, req.Y)
	default:
		err = shared.NewValidationError("unknown pointer action", map[string]interface{}{"action": req.Action})
	}
	if err != nil {
		h.failFor(rw, err)
		return
	}
	h.ok(rw, h.session.View())
}

// SetTool selects the pointer tool.
func (h *Handler) SetTool(rw http.ResponseWriter, r *http.Request) {
	if err := h.session.SetTool(shared.Tool(getURLParameter(r, "tool"))); err != nil {
		h.failFor(rw, err)
		return
	}
	h.ok(rw, h.session.View())
}

// SetClass selects the drawing class.
func (h *Handler) SetClass(rw http.ResponseWriter, r *http.Request) {
	class, err := strconv.Atoi(getURLParameter(r, "class"))
	if err != nil {
		h.fail(rw, http.StatusBadRequest, err)
		return
	}
	if err := h.session.SetClass(class); err != nil {
		h.failFor(rw, err)
		return
	}
	h.ok(rw, h.session.View())
}

// GenerateData requests a synthetic dataset from the trainer.
func (h *Handler) GenerateData(rw http.ResponseWriter, r *http.Request) {
	req := GenerateRequest{}
	if err := fromJSON(&req, r.Body); err != nil {
		h.fail(rw, http.StatusBadRequest, err)
		return
	}
	if err := h.session.GenerateData(req.Distribution, req.NumClasses); err != nil {
		h.failFor(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	toJSON(h.session.View(), rw)
}

// History lists the recorded snapshots.
func (h *Handler) History(rw http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.fail(rw, http.StatusNotFound, errors.New("history disabled"))
		return
	}
	h.ok(rw, h.history.List())
}

// Seek shows a recorded snapshot.
func (h *Handler) Seek(rw http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(getURLParameter(r, "index"))
	if err != nil {
		h.fail(rw, http.StatusBadRequest, err)
		return
	}
	if err := h.session.Seek(index); err != nil {
		h.failFor(rw, err)
		return
	}
	h.ok(rw, h.session.View())
}

// Logs returns recent log entries. ?limit=N bounds the count, ?level=warn
// keeps only entries at that level.
func (h *Handler) Logs(rw http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		h.fail(rw, http.StatusNotFound, errors.New("log capture disabled"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(rw, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	if v := r.URL.Query().Get("level"); v != "" {
		level := hclog.LevelFromString(v)
		if level == hclog.NoLevel {
			h.fail(rw, http.StatusBadRequest, errors.New("invalid level"))
			return
		}
		h.ok(rw, h.logs.EntriesByLevel(level, limit))
		return
	}
	h.ok(rw, h.logs.Entries(limit))
}

// ============================================================================
// Helpers
// ============================================================================

func (h *Handler) ok(rw http.ResponseWriter, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	if err := toJSON(body, rw); err != nil {
		h.logger.Error("error writing response", "error", err)
	}
}

func (h *Handler) fail(rw http.ResponseWriter, status int, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	toJSON(ErrorResponse{Error: err.Error()}, rw)
}

// failFor maps command errors to status codes.
func (h *Handler) failFor(rw http.ResponseWriter, err error) {
	var (
		validation *shared.ValidationError
		proto      *shared.ProtocolError
	)

	status := http.StatusInternalServerError
	code := ""
	switch {
	case errors.As(err, &validation):
		status, code = http.StatusBadRequest, validation.Code
	case errors.As(err, &proto):
		status, code = http.StatusConflict, proto.Code
	case errors.Is(err, history.ErrSeekWhileTraining):
		status = http.StatusConflict
	case errors.Is(err, history.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, controller.ErrStopped):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("command failed", "error", err)
	} else {
		h.logger.Debug("command rejected", "status", status, "error", err)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	toJSON(ErrorResponse{Error: err.Error(), Code: code}, rw)
}

func getURLParameter(r *http.Request, parameter string) string {
	return mux.Vars(r)[parameter]
}

func toJSON(i interface{}, w io.Writer) error {
	return json.NewEncoder(w).Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	return d.Decode(i)
}

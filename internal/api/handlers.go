package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/metrics"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/simulation"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/storage"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/websocket"
)

const (
	maxBodyBytes   = 1 << 16
	historyTimeout = 5 * time.Second
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dashboards may be served from anywhere
}

// Engine is the part of the simulation the HTTP and websocket surfaces drive.
type Engine interface {
	Snapshot() data.SimulationState
	Settings() data.Settings
	Tick()
	TriggerAnomaly(message string)
	TurnOffAnomaly()
	ToggleAppliance(id string, forced *bool) error
	SaveSettings(ctx context.Context, patch data.SettingsPatch) (data.Settings, error)
	ClearAlertHistory()
}

type APIHandler struct {
	engine  Engine
	store   *storage.MemoryStore
	hub     *websocket.Hub
	metrics *metrics.Metrics
	log     *slog.Logger
	tmpl    *template.Template
	webDir  string
	// ctx bounds websocket read pumps; cancelled on shutdown.
	ctx context.Context
}

func NewAPIHandler(ctx context.Context, engine Engine, store *storage.MemoryStore, hub *websocket.Hub, m *metrics.Metrics, log *slog.Logger, webDir string) *APIHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &APIHandler{
		engine:  engine,
		store:   store,
		hub:     hub,
		metrics: m,
		log:     log,
		webDir:  webDir,
		ctx:     ctx,
	}

	// Templates are optional; without them "/" is a 404.
	tmplPath := filepath.Join(webDir, "templates", "*.html")
	if matches, _ := filepath.Glob(tmplPath); len(matches) > 0 {
		tmpl, err := template.ParseGlob(tmplPath)
		if err != nil {
			log.Error("parsing templates", "path", tmplPath, "err", err)
		} else {
			h.tmpl = tmpl
		}
	}
	return h
}

type anomalyRequest struct {
	Message string `json:"message"`
}

type applianceRequest struct {
	State *bool `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": clients})
}

func (h *APIHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *APIHandler) HandleTick(w http.ResponseWriter, r *http.Request) {
	h.engine.Tick()
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *APIHandler) HandleTriggerAnomaly(w http.ResponseWriter, r *http.Request) {
	var req anomalyRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.engine.TriggerAnomaly(req.Message)
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *APIHandler) HandleClearAnomaly(w http.ResponseWriter, r *http.Request) {
	h.engine.TurnOffAnomaly()
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *APIHandler) HandleToggleAppliance(w http.ResponseWriter, r *http.Request) {
	var req applianceRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.engine.ToggleAppliance(id, req.State); err != nil {
		if errors.Is(err, simulation.ErrUnknownAppliance) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *APIHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Settings())
}

// HandlePutSettings merges the body into the settings. When persisting fails
// the merge still applies and the response is 500 with the error.
func (h *APIHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch data.SettingsPatch
	if err := decodeOptional(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.engine.SaveSettings(r.Context(), patch)
	if err != nil {
		h.log.Error("saving settings", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *APIHandler) HandleGetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot().AlertHistory)
}

func (h *APIHandler) HandleClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearAlertHistory()
	w.WriteHeader(http.StatusNoContent)
}

// HandleCommand runs a dashboard command received over the websocket.
func (h *APIHandler) HandleCommand(ctx context.Context, cmd *data.Command) error {
	switch cmd.Type {
	case data.CommandTriggerAnomaly:
		h.engine.TriggerAnomaly(cmd.Message)
	case data.CommandClearAnomaly:
		h.engine.TurnOffAnomaly()
	case data.CommandClearAlertHistory:
		h.engine.ClearAlertHistory()
	case data.CommandTick:
		h.engine.Tick()
	case data.CommandToggleAppliance:
		return h.engine.ToggleAppliance(cmd.Appliance, cmd.State)
	case data.CommandSaveSettings:
		_, err := h.engine.SaveSettings(ctx, cmd.SettingsPatch)
		return err
	default:
		return fmt.Errorf("%w: %q", data.ErrUnknownCommand, cmd.Type)
	}
	return nil
}

// HandleWebSocket upgrades connections and registers clients with the hub
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", "err", err)
		return
	}

	client := websocket.NewClient(h.hub, conn)
	// Queue the replay before registering so it precedes live broadcasts.
	h.sendInitialData(client)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	// Start read/write pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump(h.ctx)
}

// sendInitialData sends recent history and the current state to a newly
// connected client.
func (h *APIHandler) sendInitialData(client *websocket.Client) {
	if h.store != nil {
		if recent := h.store.GetAll(); len(recent) > 0 {
			h.enqueue(client, "history", recent)
		}
	}
	h.enqueue(client, string(data.EventStateUpdated), h.engine.Snapshot())
}

func (h *APIHandler) enqueue(client *websocket.Client, kind string, payload any) {
	b, err := websocket.Encode(kind, payload)
	if err != nil {
		h.log.Error("encoding initial data", "type", kind, "err", err)
		return
	}
	if !client.Enqueue(b, historyTimeout) {
		h.log.Warn("timeout sending initial data", "client", client.ID, "type", kind)
	}
}

// ServeWebUI serves the main HTML page
func (h *APIHandler) ServeWebUI(w http.ResponseWriter, r *http.Request) {
	if h.tmpl == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.tmpl.ExecuteTemplate(w, "index.html", h.engine.Snapshot()); err != nil {
		h.log.Error("executing template", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *APIHandler) staticDir() (string, bool) {
	dir := filepath.Join(h.webDir, "static")
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}

// decodeOptional decodes a JSON body into v; an empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"autodialer/internal/asterisk"
	"autodialer/internal/callevent"
	"autodialer/internal/campaign"
	"autodialer/internal/config"
	"autodialer/internal/database"
	"autodialer/internal/dialer"
)

// Campaigns admite campañas
type Campaigns interface {
	Start(ctx context.Context, req campaign.Request) (campaign.Result, error)
}

// Signals consume archivos de señal por índice
type Signals interface {
	Consume(ctx context.Context, indices []int) (asterisk.ConsumeResult, error)
}

// Events recibe eventos estructurados
type Events interface {
	Submit(ctx context.Context, ev callevent.Event) error
	Stats() callevent.Stats
}

// Pool expone el estado del despachador
type Pool interface {
	Snapshot(ctx context.Context) (dialer.Snapshot, error)
}

// Reports consulta campañas y llamadas persistidas
type Reports interface {
	GetCampaignSummary(ctx context.Context, campaignID int64) (*database.CampaignSummary, error)
	ListCallsByCampaign(ctx context.Context, campaignID int64, limit int) ([]database.Call, error)
}

// Deps agrupa los colaboradores del servidor
type Deps struct {
	Campaigns Campaigns
	Signals   Signals
	Events    Events
	Pool      Pool
	Tracker   *dialer.CompletionTracker
	Reports   Reports
	WebSocket http.Handler
}

// Server representa el servidor API REST
type Server struct {
	config config.APIConfig
	deps   Deps
}

// NewServer crea un nuevo servidor API
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	return &Server{config: cfg, deps: deps}
}

// Handler construye el enrutador con sus middlewares
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/v1/campaigns", s.handleStartCampaign)
	mux.HandleFunc(legacyStartPath, s.handleStartCampaign)
	mux.HandleFunc("/api/v1/campaigns/summary", s.handleCampaignSummary)
	mux.HandleFunc("/api/v1/calls", s.handleCalls)

	mux.HandleFunc("/api/v1/signals", s.handleSignals)
	mux.HandleFunc("/FileDeleteIndex", s.handleSignals)

	mux.HandleFunc("/api/v1/status", s.handleStatus)

	if s.deps.WebSocket != nil {
		mux.Handle("/ws", s.deps.WebSocket)
	}

	return s.corsMiddleware(mux)
}

// Run inicia el servidor HTTP y lo detiene cuando ctx se cancela
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Iniciando servidor en %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[API] Error cerrando servidor: %v", err)
		}
		return ctx.Err()
	}
}

// corsMiddleware agrega headers CORS si está habilitado
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[API] PANIC RECOVERED: %v", r)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error": "Internal Server Error"}`)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Error codificando respuesta: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStartCampaign crea una campaña y encola sus números
func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}

	var req campaign.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}

	res, err := s.deps.Campaigns.Start(r.Context(), req)
	if errors.Is(err, campaign.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, "Para campaña se requiere campaign, numbers y audio_url.")
		return
	}
	if err != nil {
		log.Printf("[API] Error al iniciar llamadas: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[API] Campaña %d encolada (%d números)", res.CampaignID, res.Queued)
	if r.URL.Path == legacyStartPath {
		writeJSON(w, http.StatusOK, legacyStartResponse{Result: res, LegacyCampaignID: res.CampaignID})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const legacyStartPath = "/start-call"

// legacyStartResponse keeps the campaignId key existing /start-call clients read.
type legacyStartResponse struct {
	campaign.Result
	LegacyCampaignID int64 `json:"campaignId"`
}

type signalsRequest struct {
	IndexCall []int            `json:"indexCall"`
	Events    []map[string]any `json:"events"`
}

type signalsResponse struct {
	Message      string   `json:"message"`
	DeletedFiles []string `json:"deletedFiles"`
	Skipped      []int    `json:"skipped,omitempty"`
	Events       int      `json:"events"`
	FailedEvents int      `json:"failedEvents,omitempty"`
}

// handleSignals recibe señales de fin de llamada por índice de archivo o estructuradas
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}

	var req signalsRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if len(req.IndexCall) == 0 && len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "Debe proporcionar un array de índices válido.")
		return
	}

	resp := signalsResponse{Message: "Archivos eliminados con éxito.", DeletedFiles: []string{}}

	if len(req.IndexCall) > 0 {
		res, err := s.deps.Signals.Consume(r.Context(), req.IndexCall)
		if err != nil {
			log.Printf("[API] Error al eliminar archivos: %v", err)
			writeError(w, http.StatusInternalServerError, "Ocurrió un error al eliminar archivos.")
			return
		}
		if res.Deleted != nil {
			resp.DeletedFiles = res.Deleted
		}
		resp.Skipped = res.Skipped
	}

	for i, fields := range req.Events {
		if err := s.deps.Events.Submit(r.Context(), callevent.FromValues(fields)); err != nil {
			log.Printf("[API] Error encolando evento: %v", err)
			resp.FailedEvents = len(req.Events) - i
			break
		}
		resp.Events++
	}

	if resp.FailedEvents > 0 {
		// files already consumed must still be reported to the caller
		if len(req.IndexCall) == 0 && resp.Events == 0 {
			writeError(w, http.StatusServiceUnavailable, "No se pudieron encolar los eventos.")
			return
		}
		resp.Message = fmt.Sprintf("Procesado parcialmente: %d eventos sin encolar.", resp.FailedEvents)
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Pool      dialer.Snapshot   `json:"pool"`
	Campaigns []dialer.Progress `json:"campaigns"`
	Ingestor  callevent.Stats   `json:"ingestor"`
}

// handleStatus devuelve ocupación de troncales, cola y progreso de campañas
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.deps.Pool.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Pool:      snap,
		Campaigns: s.deps.Tracker.Active(),
		Ingestor:  s.deps.Events.Stats(),
	})
}

func campaignIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id, err == nil && id > 0
}

// handleCampaignSummary resume una campaña por estado de llamada
func (s *Server) handleCampaignSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}
	id, ok := campaignIDParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "id inválido")
		return
	}

	summary, err := s.deps.Reports.GetCampaignSummary(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Campaña no encontrada")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCalls lista las llamadas de una campaña
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}
	id, ok := campaignIDParam(r, "campaign_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "campaign_id inválido")
		return
	}

	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	calls, err := s.deps.Reports.ListCallsByCampaign(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if calls == nil {
		calls = []database.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

// handleHealth verifica que el servicio responde
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

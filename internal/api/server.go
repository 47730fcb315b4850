package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/orchestrator"
	"github.com/kirillm/verigate/internal/supervisor"
	"github.com/kirillm/verigate/pkg/utils"
)

// Previewer двойная верификация без допуска
type Previewer interface {
	Preview(ctx context.Context, action domain.OrderAction, currentQty float64) (*domain.Preview, error)
}

// AuditReader чтение журнала допуска и анкоринга (nil без хранилища)
type AuditReader interface {
	GetAdmissionsByTrace(ctx context.Context, traceID string) ([]domain.AdmissionRecord, error)
	GetAnchorReceipts(ctx context.Context, kind, refID string) ([]domain.AnchorRecord, error)
}

// Gate шлюз допуска ордеров
type Gate interface {
	Admit(ctx context.Context, action domain.OrderAction) (*orchestrator.Admission, error)
	RecordFill(ctx context.Context, fill domain.Fill) error
	IsRunning() bool
}

type Server struct {
	logger     *utils.Logger
	pipeline   Previewer
	gate       Gate
	audit      AuditReader
	port       int
	httpServer *http.Server
	startedAt  time.Time
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ActionRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

type PreviewRequest struct {
	Action     ActionRequest `json:"action"`
	CurrentQty float64       `json:"current_qty"`
}

type DecideRequest struct {
	Checks     supervisor.Checks `json:"checks"`
	Order      DecideOrder       `json:"order"`
	CurrentQty float64           `json:"current_qty"`
}

type DecideOrder struct {
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

// safeModePayload только флаги деградации: частичные результаты клиенту не отдаются
type safeModePayload struct {
	PolicyDegraded bool `json:"policy_degraded"`
	RiskDegraded   bool `json:"risk_degraded"`
}

func NewServer(logger *utils.Logger, pipeline Previewer, gate Gate, audit AuditReader, port int) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Server{
		logger:    logger,
		pipeline:  pipeline,
		gate:      gate,
		audit:     audit,
		port:      port,
		startedAt: time.Now(),
	}
}

// Handler возвращает маршрутизатор (используется в тестах)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/preview", s.handlePreview)
	mux.HandleFunc("/decide", s.handleDecide)
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/fills", s.handleFills)
	mux.HandleFunc("/audit/admissions", s.handleAuditAdmissions)
	mux.HandleFunc("/audit/anchors", s.handleAuditAnchors)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Starting HTTP server on %s", addr)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth - health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"anchoring": s.gate != nil && s.gate.IsRunning(),
	}

	s.sendSuccess(w, health)
}

// handlePreview - двойная верификация без решения о допуске
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	action, err := req.Action.toDomain()
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	preview, err := s.pipeline.Preview(r.Context(), action, req.CurrentQty)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, preview)
}

// handleDecide - чистое правило supervisor, без внешних вызовов
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DecideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if q := req.Order.Quantity; math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		s.sendDomainError(w, fmt.Errorf("%w: quantity must be positive, got %v", domain.ErrInvalidInput, q))
		return
	}

	// неизвестная сторона не является ошибкой: в degraded режиме она дает REJECT
	side, err := domain.ParseSide(req.Order.Side)
	if err != nil {
		side = domain.Side(req.Order.Side)
	}

	decision := supervisor.Decide(req.Checks, supervisor.Order{Side: side, Quantity: req.Order.Quantity}, req.CurrentQty)

	s.sendSuccess(w, map[string]interface{}{
		"decision": decision,
	})
}

// handleOrders - допуск ордера через шлюз
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	action, err := req.toDomain()
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	admission, err := s.gate.Admit(r.Context(), action)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, admission)
}

// handleFills - постановка исполнения в очередь анкоринга
func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var fill domain.Fill
	if err := decodeJSON(w, r, &fill); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.gate.RecordFill(r.Context(), fill); err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data:    map[string]interface{}{"order_id": fill.OrderID, "queued": true},
	})
}

// handleAuditAdmissions - решения о допуске по trace_id
func (s *Server) handleAuditAdmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		s.sendError(w, "audit storage is not configured", http.StatusServiceUnavailable)
		return
	}

	traceID := getQueryParam(r, "trace_id", "")
	if traceID == "" {
		s.sendError(w, "trace_id is required", http.StatusBadRequest)
		return
	}

	records, err := s.audit.GetAdmissionsByTrace(r.Context(), traceID)
	if err != nil {
		s.sendDomainError(w, fmt.Errorf("failed to load admissions: %w", err))
		return
	}

	s.sendSuccess(w, map[string]interface{}{
		"trace_id":   traceID,
		"admissions": records,
	})
}

// handleAuditAnchors - попытки анкоринга preview или fill
func (s *Server) handleAuditAnchors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		s.sendError(w, "audit storage is not configured", http.StatusServiceUnavailable)
		return
	}

	kind := getQueryParam(r, "kind", domain.AnchorKindPreview)
	if kind != domain.AnchorKindPreview && kind != domain.AnchorKindFill {
		s.sendError(w, fmt.Sprintf("unknown kind %q", kind), http.StatusBadRequest)
		return
	}
	refID := getQueryParam(r, "ref_id", "")
	if refID == "" {
		s.sendError(w, "ref_id is required", http.StatusBadRequest)
		return
	}

	records, err := s.audit.GetAnchorReceipts(r.Context(), kind, refID)
	if err != nil {
		s.sendDomainError(w, fmt.Errorf("failed to load anchor receipts: %w", err))
		return
	}

	s.sendSuccess(w, map[string]interface{}{
		"kind":     kind,
		"ref_id":   refID,
		"receipts": records,
	})
}

func (a ActionRequest) toDomain() (domain.OrderAction, error) {
	side, err := domain.ParseSide(a.Side)
	if err != nil {
		return domain.OrderAction{}, err
	}
	action := domain.OrderAction{Symbol: a.Symbol, Side: side, Quantity: a.Quantity}
	return action, action.Validate()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Helper methods
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	s.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, statusCode, Response{
		Success: false,
		Error:   message,
	})
}

// sendDomainError отображает ошибки домена в статус и полезную нагрузку
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	status := domain.StatusCode(err)
	resp := Response{Success: false, Error: err.Error()}

	var safeMode *domain.SafeModeError
	var rejected *domain.PolicyRejectedError
	switch {
	case errors.As(err, &safeMode):
		resp.Data = safeModePayload{
			PolicyDegraded: safeMode.PolicyDegraded,
			RiskDegraded:   safeMode.RiskDegraded,
		}
	case errors.As(err, &rejected):
		resp.Data = rejected
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// клиент ушел, ответ никто не прочитает
		status = 499
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.sendJSON(w, status, resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// Helper function to parse query parameter
func getQueryParam(r *http.Request, key string, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

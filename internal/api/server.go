package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"DealPilot/internal/auth"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/observability/metrics"
	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

const tasksPath = "/api/v1/tasks"

// TaskService 是 API 依赖的任务服务能力，由 task.Service 实现。
type TaskService interface {
	Enqueue(ctx context.Context, req task.Request) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.TaskStats, error)
	Subscribe(ctx context.Context) (<-chan task.Event, error)
}

// Server 负责暴露 REST 与 WebSocket 接口，供外部提交任务并跟踪进度。
type Server struct {
	addr            string
	tasks           TaskService
	personas        []string
	metrics         *metrics.Registry
	auth            *auth.Service
	metricsPath     string
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader
}

// Option 定义可选配置。
type Option func(*Server)

// WithPersonas 限定可提交的 persona，提交未知 persona 时直接拒绝。
func WithPersonas(personas ...string) Option {
	return func(s *Server) {
		s.personas = s.personas[:0]
		for _, p := range personas {
			s.personas = append(s.personas, strings.ToLower(strings.TrimSpace(p)))
		}
	}
}

// WithMetrics 挂载 Prometheus 指标与请求统计中间件。
func WithMetrics(reg *metrics.Registry, path string) Option {
	return func(s *Server) {
		s.metrics = reg
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithAuth 为任务与事件接口启用令牌认证，/healthz 与指标路径不受影响。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks TaskService, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		tasks:           tasks,
		metricsPath:     "/metrics",
		shutdownTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(tasksPath, s.instrument("tasks", s.handleTasks))
	mux.Handle(tasksPath+"/", s.instrument("task_detail", s.handleTaskDetail))
	mux.Handle("/api/v1/personas", s.instrument("personas", s.handlePersonas))
	mux.Handle("/ws", s.instrument("events", s.handleEvents))
	mux.HandleFunc("/healthz", handleHealth)
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}
	return mux
}

func (s *Server) instrument(name string, fn http.HandlerFunc) http.Handler {
	guard := s.auth.Middleware(auth.MiddlewareConfig{
		RequiredPermissions: auth.TaskPermissions(),
		AuditEvent:          name,
		QueryToken:          "access_token",
	})
	return s.metrics.Middleware(name, guard(fn))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET/POST"))
	}
}

// handleCreateTask 登记任务并推送到队列，返回 202 与任务快照。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	var req task.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	persona := strings.ToLower(strings.TrimSpace(req.Persona))
	if persona != "" && len(s.personas) > 0 && !slices.Contains(s.personas, persona) {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeUnsupportedPersona, "unsupported persona: "+req.Persona))
		return
	}

	created, err := s.tasks.Enqueue(r.Context(), req)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": results})
}

// handleTaskDetail 处理 /api/v1/tasks/{id} 与 /api/v1/tasks/stats。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, tasksPath), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	if id == "stats" {
		s.handleStats(w, r)
		return
	}
	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	personas := s.personas
	if personas == nil {
		personas = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": personas})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseListOptions(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 不能为负数")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务状态: "+part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := q.Get("persona"); raw != "" {
		opts = append(opts, task.WithPersona(raw))
	}
	if raw := q.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if raw := q.Get("has_result"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "has_result 必须为布尔值")
		}
		opts = append(opts, task.WithResultPresence(has))
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	for key, apply := range map[string]func(time.Time) task.ListOption{
		"updated_since": task.WithUpdatedSince,
		"updated_until": task.WithUpdatedUntil,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, key+" 必须为 Unix 秒")
		}
		opts = append(opts, apply(time.Unix(unix, 0)))
	}
	return opts, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeTaskError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case task.CodeTaskValidation, xerrors.CodeInvalidArgument, xerrors.CodeInvalidParams, xerrors.CodeUnsupportedPersona:
		return http.StatusBadRequest
	case task.CodeTaskConflict, xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case task.CodeTaskPublish, xerrors.CodeQueueFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(xerrors.CodeOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeCancelled, "服务已关闭"))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

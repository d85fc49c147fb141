package auth

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	xerrors "DealPilot/internal/errors"
)

// 认证失败时写入响应体的错误码。
const (
	CodeUnauthenticated xerrors.Code = "UNAUTHENTICATED"
	CodeForbidden       xerrors.Code = "FORBIDDEN"
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{
		Message:  "missing or invalid api token",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeForbidden, xerrors.Attributes{
		Message:  "permission denied",
		Severity: xerrors.SeverityWarning,
	})
}

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 按 HTTP 方法列出所需权限，"*" 作为兜底。
	RequiredPermissions map[string][]string
	// AuditEvent 为审计日志中的事件名称，为空时使用请求路径。
	AuditEvent string
	// QueryToken 允许从该查询参数读取令牌，供无法设置头部的 WebSocket 客户端使用。
	QueryToken string
}

// TaskPermissions 是任务 API 的默认权限表：读请求需要 tasks:read，其余需要 tasks:write。
func TaskPermissions() map[string][]string {
	return map[string][]string{
		http.MethodGet:  {PermTasksRead},
		http.MethodHead: {PermTasksRead},
		"*":             {PermTasksWrite},
	}
}

// Middleware 返回一个 HTTP 中间件，用于处理身份认证和授权。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !s.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" && cfg.QueryToken != "" {
				if token := r.URL.Query().Get(cfg.QueryToken); token != "" {
					header = "Bearer " + token
				}
			}
			subject, err := s.AuthenticateRequest(header)
			if err != nil {
				s.deny(w, r, http.StatusUnauthorized, CodeUnauthenticated, err, "")
				return
			}

			perms := cfg.RequiredPermissions[r.Method]
			if len(perms) == 0 {
				perms = cfg.RequiredPermissions["*"]
			}
			if err := subject.Authorize(perms...); err != nil {
				s.deny(w, r, http.StatusForbidden, CodeForbidden, err, subject.Name)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			s.audit.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"caller", subject.Name,
			)
		})
	}
}

func (s *Service) deny(w http.ResponseWriter, r *http.Request, status int, code xerrors.Code, err error, caller string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="dealpilot"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": string(code)})

	event := "access_denied"
	if errors.Is(err, ErrPermissionDenied) {
		event = "permission_denied"
	}
	s.audit.Warn(event,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"caller", caller,
	)
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack 让 WebSocket 升级穿过审计包装。
func (w *auditWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

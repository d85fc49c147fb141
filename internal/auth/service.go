package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"DealPilot/internal/config"
	loggerpkg "DealPilot/pkg/logger"
)

// Service 用静态令牌校验 API 调用方。
// 未配置任何令牌时 Enabled 返回 false，中间件直接放行。
type Service struct {
	grants []storedGrant
	audit  *slog.Logger
}

type storedGrant struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// NewService 使用给定授权列表构建服务，令牌只以摘要形式保存。
func NewService(grants ...Grant) (*Service, error) {
	s := &Service{audit: loggerpkg.Audit()}
	seen := make(map[[sha256.Size]byte]string, len(grants))
	for _, g := range grants {
		if strings.TrimSpace(g.Token) == "" {
			return nil, fmt.Errorf("grant %q has an empty token", g.Name)
		}
		digest := sha256.Sum256([]byte(g.Token))
		if prev, dup := seen[digest]; dup {
			return nil, fmt.Errorf("grants %q and %q share a token", prev, g.Name)
		}
		seen[digest] = g.Name
		s.grants = append(s.grants, storedGrant{digest: digest, subject: newSubject(g.Name, g.Permissions)})
	}
	return s, nil
}

// FromConfig 把配置里的读写令牌与只读令牌转换为服务。
func FromConfig(cfg config.AuthConfig) (*Service, error) {
	var grants []Grant
	for i, raw := range cfg.Tokens {
		g, err := ParseGrant(raw, fmt.Sprintf("token-%d", i+1), PermTasksRead, PermTasksWrite)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	for i, raw := range cfg.ReadOnlyTokens {
		g, err := ParseGrant(raw, fmt.Sprintf("readonly-%d", i+1), PermTasksRead)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return NewService(grants...)
}

// WithAuditLogger 替换审计日志输出。
func (s *Service) WithAuditLogger(l *slog.Logger) *Service {
	if s != nil && l != nil {
		s.audit = l
	}
	return s
}

// Enabled 报告是否配置了令牌。
func (s *Service) Enabled() bool {
	return s != nil && len(s.grants) > 0
}

// Authenticate 校验裸令牌并返回对应主体。
func (s *Service) Authenticate(token string) (*Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	var match *Subject
	for _, g := range s.grants {
		if subtle.ConstantTimeCompare(digest[:], g.digest[:]) == 1 {
			match = g.subject
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	return match, nil
}

// AuthenticateRequest 解析 Authorization 头部中的 Bearer 令牌。
func (s *Service) AuthenticateRequest(header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidToken
	}
	return s.Authenticate(token)
}

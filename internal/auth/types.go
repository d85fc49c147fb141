package auth

import (
	"errors"
	"fmt"
	"strings"
)

// 认证子系统返回的常见错误。
var (
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrPermissionDenied = errors.New("permission denied")
)

// 任务 API 使用的权限。
const (
	PermTasksRead  = "tasks:read"
	PermTasksWrite = "tasks:write"
)

// Grant 把一个静态令牌绑定到调用方名称和权限集合。
type Grant struct {
	Name        string
	Token       string
	Permissions []string
}

// ParseGrant 解析 "name:token" 或单独的 "token" 形式。
// 未给出名称时使用 fallback。
func ParseGrant(raw, fallback string, perms ...string) (Grant, error) {
	raw = strings.TrimSpace(raw)
	name, token := fallback, raw
	if before, after, ok := strings.Cut(raw, ":"); ok {
		name, token = strings.TrimSpace(before), strings.TrimSpace(after)
	}
	if token == "" {
		return Grant{}, fmt.Errorf("token for %q is empty", name)
	}
	if name == "" {
		name = fallback
	}
	return Grant{Name: name, Token: token, Permissions: perms}, nil
}

// Subject 是通过认证的调用方，经由 context 传给处理函数。
type Subject struct {
	Name        string
	Permissions []string

	permissionsSet map[string]struct{}
}

func newSubject(name string, perms []string) *Subject {
	s := &Subject{Name: name, Permissions: append([]string(nil), perms...)}
	s.permissionsSet = make(map[string]struct{}, len(perms))
	for _, perm := range perms {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
	return s
}

// HasPermission 判断主体是否拥有指定权限。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize 要求主体拥有全部给定权限。
func (s *Subject) Authorize(perms ...string) error {
	for _, perm := range perms {
		if !s.HasPermission(perm) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

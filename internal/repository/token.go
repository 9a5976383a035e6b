package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenKey = "access_token"

// TokenRepository 访问令牌存储（本地 KV）
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get 读取当前令牌，未设置时返回空字符串
// 如果令牌是 JWT 且已过期，直接清除并按未设置处理，避免带着过期令牌请求后端
func (r *TokenRepository) Get() (string, error) {
	var token string
	err := r.db.QueryRow("SELECT value FROM kv_store WHERE key = ?", tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if tokenExpired(token) {
		_ = r.Clear()
		return "", nil
	}

	return token, nil
}

// Set 保存令牌
func (r *TokenRepository) Set(token string) error {
	_, err := r.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		tokenKey, token)
	return err
}

// Clear 清除令牌（收到 401 后调用）
func (r *TokenRepository) Clear() error {
	_, err := r.db.Exec("DELETE FROM kv_store WHERE key = ?", tokenKey)
	return err
}

// tokenExpired 不验签解析 JWT，检查 exp 是否已过
// 非 JWT 或没有 exp 的令牌视为不透明令牌，交给后端判断
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// Package auth 实现单密码鉴权: PBKDF2口令文件、HS256访问令牌与登录限流。
// 令牌签名密钥由口令哈希派生,修改密码后既有令牌全部失效。
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/logger"
)

const (
	pbkdf2Iterations = 390000
	minIterations    = 100000
	minPasswordLen   = 6
	saltSize         = 16
	minTokenTTL      = 5 * time.Minute
	pwdClaimLen      = 16
)

// credentials 口令文件结构
type credentials struct {
	Salt         string `json:"salt"`
	PasswordHash string `json:"password_hash"`
	Iterations   int    `json:"iterations"`
	UpdatedAt    int64  `json:"updated_at"`
}

type tokenClaims struct {
	Pwd string `json:"pwd"`
	jwt.RegisteredClaims
}

// Options 鉴权服务配置
type Options struct {
	AuthFile          string
	TokenTTL          time.Duration
	BootstrapPassword string
	Limiter           *LoginLimiter
	// AllowedDownloadRoots 透出给前端的可选下载根目录
	AllowedDownloadRoots []string
}

// Service 鉴权服务
type Service struct {
	file         string
	tokenTTL     time.Duration
	limiter      *LoginLimiter
	allowedRoots []string

	mu    sync.Mutex
	creds *credentials // nil表示尚未设置密码

	now func() time.Time
}

var _ contracts.AuthService = (*Service)(nil)

// NewService 创建鉴权服务并加载口令文件。
// 文件缺失且配置了预置密码时,以预置密码完成初始化。
func NewService(opts Options) (*Service, error) {
	ttl := opts.TokenTTL
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLoginLimiter(6, 5*time.Minute, 10*time.Minute)
	}

	s := &Service{
		file:         opts.AuthFile,
		tokenTTL:     ttl,
		limiter:      limiter,
		allowedRoots: opts.AllowedDownloadRoots,
		now:          time.Now,
	}

	if err := s.load(strings.TrimSpace(opts.BootstrapPassword)); err != nil {
		return nil, err
	}
	return s, nil
}

// Status 实现 contracts.AuthService
func (s *Service) Status(ctx context.Context) (*contracts.AuthStatusResponse, error) {
	s.mu.Lock()
	configured := s.creds != nil
	s.mu.Unlock()

	return &contracts.AuthStatusResponse{
		Configured:           configured,
		AllowedDownloadRoots: s.allowedRoots,
	}, nil
}

// Setup 实现 contracts.AuthService;已设置过密码时返回CONFLICT
func (s *Service) Setup(ctx context.Context, req contracts.AuthSetupRequest) (*contracts.AuthTokenResponse, error) {
	password := strings.TrimSpace(req.Password)
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds != nil {
		return nil, errors.New(errors.ErrorCodeConflict, "访问密码已设置，请直接登录")
	}
	if err := s.setPasswordLocked(password); err != nil {
		return nil, err
	}

	logger.Info("access password configured")
	return s.issueTokenLocked()
}

// Login 实现 contracts.AuthService
func (s *Service) Login(ctx context.Context, clientKey string, req contracts.AuthLoginRequest) (*contracts.AuthTokenResponse, error) {
	password := strings.TrimSpace(req.Password)
	if password == "" {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, "密码不能为空")
	}

	if remaining := s.limiter.BlockedSeconds(clientKey); remaining > 0 {
		return nil, errors.WithDetails(errors.ErrorCodeBlocked,
			"登录失败次数过多，请稍后重试",
			map[string]interface{}{"retry_after_seconds": remaining})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		return nil, errors.New(errors.ErrorCodeConflict, "请先设置访问密码")
	}

	if !s.verifyPasswordLocked(password) {
		blocked := s.limiter.RegisterFailure(clientKey)
		logger.Warn("login failed", "client", clientKey, "blocked_seconds", blocked)
		if blocked > 0 {
			return nil, errors.WithDetails(errors.ErrorCodeBlocked,
				"登录失败次数过多，请稍后重试",
				map[string]interface{}{"retry_after_seconds": blocked})
		}
		return nil, errors.New(errors.ErrorCodeUnauthorized, "密码错误")
	}

	s.limiter.RegisterSuccess(clientKey)
	return s.issueTokenLocked()
}

// Verify 实现 contracts.AuthService
func (s *Service) Verify(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil || token == "" {
		return errors.New(errors.ErrorCodeUnauthorized, "未登录或登录已过期")
	}

	secret, err := s.signingKeyLocked()
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInternalError, "鉴权配置异常", err)
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return errors.New(errors.ErrorCodeUnauthorized, "未登录或登录已过期")
	}

	// 口令版本绑定: 密码修改后旧令牌作废
	if !hmac.Equal([]byte(claims.Pwd), []byte(s.creds.PasswordHash[:pwdClaimLen])) {
		return errors.New(errors.ErrorCodeUnauthorized, "未登录或登录已过期")
	}
	return nil
}

// ChangePassword 实现 contracts.AuthService
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		return errors.New(errors.ErrorCodeConflict, "请先设置访问密码")
	}
	if !s.verifyPasswordLocked(strings.TrimSpace(oldPassword)) {
		return errors.New(errors.ErrorCodeUnauthorized, "原密码错误")
	}
	if err := s.setPasswordLocked(newPassword); err != nil {
		return err
	}

	logger.Info("access password changed, existing tokens revoked")
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.New(errors.ErrorCodeInvalidRequest,
			fmt.Sprintf("密码长度不能少于 %d 位", minPasswordLen))
	}
	return nil
}

func (s *Service) load(bootstrapPassword string) error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0755); err != nil {
		return err
	}

	raw, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		if bootstrapPassword == "" {
			return nil
		}
		if err := validatePassword(bootstrapPassword); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.setPasswordLocked(bootstrapPassword)
	}
	if err != nil {
		return err
	}

	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return fmt.Errorf("口令文件损坏 %s: %w", s.file, err)
	}
	creds.PasswordHash = strings.ToLower(strings.TrimSpace(creds.PasswordHash))
	creds.Salt = strings.ToLower(strings.TrimSpace(creds.Salt))
	if creds.PasswordHash == "" || creds.Salt == "" {
		return nil
	}
	if creds.Iterations < minIterations {
		creds.Iterations = pbkdf2Iterations
	}

	s.creds = &creds
	return nil
}

func (s *Service) setPasswordLocked(password string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, sha256.Size, sha256.New)
	creds := &credentials{
		Salt:         hex.EncodeToString(salt),
		PasswordHash: hex.EncodeToString(hash),
		Iterations:   pbkdf2Iterations,
		UpdatedAt:    s.now().Unix(),
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return err
	}

	s.creds = creds
	return nil
}

func (s *Service) verifyPasswordLocked(password string) bool {
	salt, err := hex.DecodeString(s.creds.Salt)
	if err != nil {
		return false
	}
	candidate := pbkdf2.Key([]byte(password), salt, s.creds.Iterations, sha256.Size, sha256.New)
	expected, err := hex.DecodeString(s.creds.PasswordHash)
	if err != nil {
		return false
	}
	return hmac.Equal(candidate, expected)
}

func (s *Service) signingKeyLocked() ([]byte, error) {
	return hex.DecodeString(s.creds.PasswordHash)
}

func (s *Service) issueTokenLocked() (*contracts.AuthTokenResponse, error) {
	secret, err := s.signingKeyLocked()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "鉴权配置异常", err)
	}

	now := s.now()
	claims := tokenClaims{
		Pwd: s.creds.PasswordHash[:pwdClaimLen],
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternalError, "令牌签发失败", err)
	}

	return &contracts.AuthTokenResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int64(s.tokenTTL / time.Second),
	}, nil
}

// ExtractBearerToken 从Authorization头提取bearer令牌,无效时返回空串
func ExtractBearerToken(raw string) string {
	parts := strings.SplitN(strings.TrimSpace(raw), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

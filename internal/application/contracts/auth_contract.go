package contracts

import "context"

// AuthSetupRequest 首次设置密码请求
type AuthSetupRequest struct {
	Password string `json:"password" binding:"required"`
}

// AuthLoginRequest 登录请求
type AuthLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AuthChangePasswordRequest 修改密码请求
type AuthChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AuthTokenResponse 登录/设置成功响应
type AuthTokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"` // 秒
}

// AuthStatusResponse 鉴权状态响应
type AuthStatusResponse struct {
	Configured           bool     `json:"configured"`
	AllowedDownloadRoots []string `json:"allowed_download_roots,omitempty"`
}

// AuthService 密码鉴权与令牌签发
type AuthService interface {
	Status(ctx context.Context) (*AuthStatusResponse, error)
	Setup(ctx context.Context, req AuthSetupRequest) (*AuthTokenResponse, error)
	// Login clientKey用于登录限流,通常为客户端IP
	Login(ctx context.Context, clientKey string, req AuthLoginRequest) (*AuthTokenResponse, error)
	// Verify 校验令牌,失败返回UNAUTHORIZED
	Verify(ctx context.Context, token string) error
	// ChangePassword 修改密码并使既有令牌全部失效
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

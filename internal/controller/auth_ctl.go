package controller

import (
	"github.com/gin-gonic/gin"

	"meli_sync_v1_202601/internal/service"
)

// AuthController 授权控制器
// 只负责首次授权码换 token，后续续期由服务侧惰性完成
type AuthController struct {
	auth *service.AuthService
}

// NewAuthController 创建授权控制器
func NewAuthController(auth *service.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

type exchangeRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri" binding:"required"`
}

// Exchange 授权码换取并保存凭证
// POST /api/v1/auth/exchange
func (c *AuthController) Exchange(ctx *gin.Context) {
	var req exchangeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	token, err := c.auth.InitFromCode(ctx.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(200, gin.H{
		"code":    200,
		"message": "授权成功",
		"data": gin.H{
			"account_id": token.AccountID,
			"expires_at": token.ExpiresAt,
		},
	})
}

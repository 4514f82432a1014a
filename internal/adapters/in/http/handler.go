package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/in"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
	"github.com/EthanQC/warpong/pkg/zlog"
)

// AccountHandler 账号、位置与历史消息接口
type AccountHandler struct {
	accounts in.AccountUseCase
}

func NewAccountHandler(accounts in.AccountUseCase) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterRoutes 同时挂在 r 与 r/api 下
func (h *AccountHandler) RegisterRoutes(r gin.IRouter) {
	for _, g := range []gin.IRouter{r, r.Group("/api")} {
		g.POST("/register", h.handleRegister)
		g.POST("/login", h.handleLogin)
		g.POST("/location", h.handleLocation)
		g.GET("/users", h.handleListUsers)
		g.GET("/messages/:from/:to", h.handleConversation)
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nama     string `json:"nama"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type locationRequest struct {
	Token string   `json:"token"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
}

func (h *AccountHandler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.ErrInvalidInput)
		return
	}
	if _, err := h.accounts.Register(c.Request.Context(), in.RegisterRequest{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.Nama,
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "registered"})
}

func (h *AccountHandler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.ErrInvalidInput)
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": res.Token, "user": res.User})
}

func (h *AccountHandler) handleLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		fail(c, apperrors.ErrInvalidInput)
		return
	}
	loc := entity.Location{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.accounts.UpdateLocation(c.Request.Context(), req.Token, loc); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AccountHandler) handleListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
}

func (h *AccountHandler) handleConversation(c *gin.Context) {
	msgs, err := h.accounts.Conversation(c.Request.Context(), c.Param("from"), c.Param("to"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// fail 统一错误响应 {success:false, message}
func fail(c *gin.Context, err error) {
	status := mapError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zlog.C(c.Request.Context()).Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func mapError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidPassword),
		errors.Is(err, apperrors.ErrInvalidToken):
		return http.StatusUnauthorized
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

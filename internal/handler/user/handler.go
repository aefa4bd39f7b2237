package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/user"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type Handler struct {
	service *user.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *user.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

// RegisterRoutes expects r to already require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.Me)
		users.POST("", h.auth.RequireRole(model.RoleAdmin), h.CreateUser)
		users.GET("/:id", h.auth.RequireRole(model.RoleAdmin, model.RoleDoctor), h.GetUser)
	}
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := middleware.Actor(c)
	if !ok {
		httputil.RespondWithError(c, errors.NewUnauthenticated("authentication required", nil))
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), actor.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, user)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewInvalidInput("invalid user ID", err))
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, user)
}

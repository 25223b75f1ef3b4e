package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/usermanager/internal/cqrs"
	"github.com/eaglebank/usermanager/internal/middleware"
	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/service"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	Create(context.Context, cqrs.CreateUserCommand) (*models.UserView, error)
	Update(context.Context, cqrs.UpdateUserCommand) (*models.UserView, error)
	Delete(context.Context, cqrs.DeleteUserCommand) error
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	List(context.Context, cqrs.ListUsersQuery) ([]models.UserView, error)
	FindByID(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
}

// UserHandler translates HTTP requests into commands and queries and renders
// their outcomes.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

// Field presence is checked by the service so that every transport reports
// missing data the same way.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
}

type CreatedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UpdatedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type CreateUserResponse struct {
	Message string      `json:"message"`
	User    CreatedUser `json:"user"`
}

type UpdateUserResponse struct {
	Message string      `json:"message"`
	User    UpdatedUser `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

// Register mounts the user routes on rg.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.ListUsers)
	rg.POST("", h.CreateUser)
	rg.GET("/:userId", h.GetUser)
	rg.PATCH("/:userId", h.UpdateUser)
	rg.PUT("/:userId", h.UpdateUser)
	rg.DELETE("/:userId", h.DeleteUser)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	views, err := h.queries.List(c.Request.Context(), cqrs.ListUsersQuery{})
	if err != nil {
		middleware.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	view, err := h.queries.FindByID(c.Request.Context(), cqrs.GetUserQuery{UserID: c.Param("userId")})
	if err != nil {
		middleware.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	// An unreadable body leaves req empty and fails validation like any
	// other request missing its fields.
	_ = c.ShouldBindJSON(&req)

	view, err := h.commands.Create(c.Request.Context(), cqrs.CreateUserCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateUserResponse{
		Message: service.MsgUserCreated,
		User:    CreatedUser{ID: view.ID, Username: view.Username, Email: view.Email},
	})
}

// UpdateUser changes the username only. Other fields in the body, such as
// email or password, are ignored.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	_ = c.ShouldBindJSON(&req)

	view, err := h.commands.Update(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID:   c.Param("userId"),
		Username: req.Username,
	})
	if err != nil {
		middleware.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, UpdateUserResponse{
		Message: service.MsgUserUpdated,
		User:    UpdatedUser{ID: view.ID, Username: view.Username},
	})
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	err := h.commands.Delete(c.Request.Context(), cqrs.DeleteUserCommand{UserID: c.Param("userId")})
	if err != nil {
		middleware.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: service.MsgUserDeleted})
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/store"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) GetUsers(c *fiber.Ctx) error {
	users, err := h.Store.ListUsers(c.UserContext())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(users)
}

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Username and password are required"})
	}
	if input.Role == "" {
		input.Role = models.RoleUser
	}
	if input.Role != models.RoleUser && input.Role != models.RoleAdmin {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Unknown role"})
	}

	ctx := c.UserContext()
	if _, err := h.Store.FindUserByName(ctx, input.Username); err == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "User already exists"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not hash password"})
	}
	user := models.User{Name: input.Username, Role: input.Role, Password: string(hashed)}
	if err := h.Store.CreateUser(ctx, &user); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	AddEvent("info", "User created: "+user.Name)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "User created", "user": user})
}

func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	switch err := h.Store.DeleteUser(c.UserContext(), uint(id)); {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, store.ErrProtectedUser):
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "User deleted"})
}

// ResetPassword sets a new password for another user
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var input struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil || input.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Password is required"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not hash password"})
	}

	switch err := h.Store.SetPassword(c.UserContext(), uint(id), string(hashed)); {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case err != nil:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Password reset"})
}

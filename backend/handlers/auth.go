package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/store"
	"traffic-monitor/backend/system"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest struct
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}

	ctx := c.UserContext()
	user, err := h.Store.FindUserByName(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			system.Error("Login lookup failed: %v", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not login"})
		}
		system.Warn("Failed login attempt for unknown user: %s", req.Username)
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		system.Warn("Failed login attempt for user: %s", req.Username)
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	if err := h.Store.TouchLogin(ctx, user.ID, h.now()); err != nil {
		system.Warn("Failed to record login for %s: %v", user.Name, err)
	}

	t, err := h.issueToken(user)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not login"})
	}

	AddEvent("success", "User logged in: "+user.Name)
	return c.JSON(fiber.Map{"token": t, "role": user.Role})
}

func (h *Handler) issueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user": user.Name,
		"role": user.Role,
		"exp":  h.now().Add(time.Hour * 24).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// ChangePassword handler
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	username := currentUser(c)

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}
	if req.NewPassword == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "New password is required"})
	}

	ctx := c.UserContext()
	user, err := h.Store.FindUserByName(ctx, username)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Incorrect old password"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not hash password"})
	}
	if err := h.Store.SetPassword(ctx, user.ID, string(hashed)); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	system.Info("User changed password: %s", username)

	return c.JSON(fiber.Map{"message": "Password updated"})
}

// JWTAuthMiddleware validates JWT token
func (h *Handler) JWTAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		// Check Bearer prefix
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization format"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		// Parse and validate token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(http.StatusUnauthorized, "Invalid signing method")
			}
			return h.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		// Store token in context for handlers
		c.Locals("user", token)

		return c.Next()
	}
}

// AdminOnly rejects tokens without the admin role. It must run after
// JWTAuthMiddleware.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claim(c, "role") != models.RoleAdmin {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "Admin privileges required"})
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	return claim(c, "user")
}

func claim(c *fiber.Ctx, name string) string {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	v, _ := claims[name].(string)
	return v
}

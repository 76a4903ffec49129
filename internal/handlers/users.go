package handlers

import (
	"errors"
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// User names become directory names, so keep them filesystem-safe
var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// UsersHandler manages the user registry endpoints
type UsersHandler struct {
	registry *storage.Registry
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(registry *storage.Registry) *UsersHandler {
	return &UsersHandler{registry: registry}
}

// Create registers a new user
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User name is required",
			"code":  "ERR_NO_NAME",
		})
	}
	if !userNamePattern.MatchString(body.Name) {
		return c.Status(400).JSON(fiber.Map{
			"error": "User name may only contain letters, digits, _ and -",
			"code":  "ERR_BAD_NAME",
		})
	}

	if err := h.registry.CreateUser(body.Name); err != nil {
		if errors.Is(err, types.ErrUserExists) {
			return c.Status(409).JSON(fiber.Map{
				"error": "User already exists",
				"code":  "ERR_USER_EXISTS",
			})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(201).JSON(fiber.Map{"name": body.Name})
}

// List returns all registered users
func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.registry.ListUsers()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if users == nil {
		users = []string{}
	}
	return c.JSON(fiber.Map{"users": users})
}

// History returns the user's recognition history in chronological order
func (h *UsersHandler) History(c *fiber.Ctx) error {
	name := c.Params("name")

	exists, err := h.registry.UserExists(name)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !exists {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
			"code":  "ERR_USER_NOT_FOUND",
		})
	}

	history, err := h.registry.History(name)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if history == nil {
		history = []types.HistoryEntry{}
	}
	return c.JSON(fiber.Map{"user": name, "history": history})
}

package handlers

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/queue"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
)

// TranscribeHandler accepts audio uploads and queues recognition jobs
type TranscribeHandler struct {
	pool      *queue.Pool
	registry  *storage.Registry
	tempDir   string
	maxSizeMB int
}

// NewTranscribeHandler creates a new transcription intake handler
func NewTranscribeHandler(pool *queue.Pool, registry *storage.Registry, tempDir string, maxSizeMB int) *TranscribeHandler {
	return &TranscribeHandler{
		pool:      pool,
		registry:  registry,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
	}
}

// Handle processes the upload request
func (h *TranscribeHandler) Handle(c *fiber.Ctx) error {
	user := c.Params("name")

	// User existence is a precondition for any transcription targeting it
	exists, err := h.registry.UserExists(user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !exists {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
			"code":  "ERR_USER_NOT_FOUND",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !audio.ValidFormat(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported audio format (wav, mp3, m4a)",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	// Stage the upload; the sample directory gets its own verbatim copy later
	jobID := uuid.New().String()
	extension := filepath.Ext(file.Filename)
	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("%s%s", jobID, extension))

	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	job := queue.NewTranscribeJob(jobID, user, file.Filename, tempPath)
	h.pool.Enqueue(job)

	return c.JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "queued",
		"message": "File uploaded successfully, recognition started",
	})
}

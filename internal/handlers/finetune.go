package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/queue"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// FineTuneHandler starts fine-tune runs and manages per-user checkpoints
type FineTuneHandler struct {
	pool        *queue.Pool
	registry    *storage.Registry
	checkpoints *storage.Checkpoints
}

// NewFineTuneHandler creates a new fine-tune handler
func NewFineTuneHandler(pool *queue.Pool, registry *storage.Registry, checkpoints *storage.Checkpoints) *FineTuneHandler {
	return &FineTuneHandler{
		pool:        pool,
		registry:    registry,
		checkpoints: checkpoints,
	}
}

func (h *FineTuneHandler) requireUser(c *fiber.Ctx) (string, bool, error) {
	user := c.Params("name")
	exists, err := h.registry.UserExists(user)
	if err != nil {
		return "", false, c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !exists {
		return "", false, c.Status(404).JSON(fiber.Map{
			"error": "User not found",
			"code":  "ERR_USER_NOT_FOUND",
		})
	}
	return user, true, nil
}

// Start queues a fine-tune run over the user's corrected samples
func (h *FineTuneHandler) Start(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	var body struct {
		Epochs       int     `json:"epochs"`
		BatchSize    int     `json:"batch_size"`
		LearningRate float64 `json:"learning_rate"`
	}
	// All params optional; defaults applied by the job
	c.BodyParser(&body)

	jobID := uuid.New().String()
	job := queue.NewFineTuneJob(jobID, user, queue.FineTuneParams{
		Epochs:       body.Epochs,
		BatchSize:    body.BatchSize,
		LearningRate: body.LearningRate,
	})
	h.pool.Enqueue(job)

	return c.JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "queued",
		"message": "Fine-tuning started",
	})
}

// Checkpoints lists the user's fine-tuned checkpoints with lineage
func (h *FineTuneHandler) Checkpoints(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	checkpoints, err := h.checkpoints.List(user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if checkpoints == nil {
		checkpoints = []types.Checkpoint{}
	}

	active, _ := h.checkpoints.Active(user)
	return c.JSON(fiber.Map{
		"user":        user,
		"active":      active,
		"checkpoints": checkpoints,
	})
}

// SetActive points the user at one of their checkpoints
func (h *FineTuneHandler) SetActive(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	var body struct {
		Checkpoint string `json:"checkpoint"`
	}
	if err := c.BodyParser(&body); err != nil || body.Checkpoint == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "checkpoint is required",
			"code":  "ERR_NO_CHECKPOINT",
		})
	}

	if err := h.checkpoints.SetActive(user, body.Checkpoint); err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_CHECKPOINT_NOT_FOUND",
		})
	}
	return c.JSON(fiber.Map{"status": "activated", "checkpoint": body.Checkpoint})
}

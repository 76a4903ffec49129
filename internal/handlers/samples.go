package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/dataset"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// SamplesHandler exposes the dataset store: sample listing plus annotation
// and correction upserts
type SamplesHandler struct {
	store    *dataset.Store
	recorder *dataset.CorrectionRecorder
	registry *storage.Registry
}

// NewSamplesHandler creates a new samples handler
func NewSamplesHandler(store *dataset.Store, recorder *dataset.CorrectionRecorder, registry *storage.Registry) *SamplesHandler {
	return &SamplesHandler{
		store:    store,
		recorder: recorder,
		registry: registry,
	}
}

func (h *SamplesHandler) requireUser(c *fiber.Ctx) (string, bool, error) {
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

// List returns the user's samples in chronological order
func (h *SamplesHandler) List(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	samples, err := h.store.ListSamples(user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if samples == nil {
		samples = []types.Sample{}
	}
	return c.JSON(fiber.Map{"user": user, "samples": samples})
}

// Get returns one sample by id
func (h *SamplesHandler) Get(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	sample, err := h.store.GetSample(user, c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Sample not found",
			"code":  "ERR_SAMPLE_NOT_FOUND",
		})
	}
	return c.JSON(sample)
}

// Annotate upserts free-form quality metadata on a sample
func (h *SamplesHandler) Annotate(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	var data map[string]interface{}
	if err := c.BodyParser(&data); err != nil || len(data) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Annotation body must be a non-empty JSON object",
			"code":  "ERR_BAD_ANNOTATION",
		})
	}

	if err := h.store.AttachAnnotation(user, c.Params("id"), data); err != nil {
		if errors.Is(err, types.ErrSampleNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"error": "Sample not found",
				"code":  "ERR_SAMPLE_NOT_FOUND",
			})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "annotated"})
}

// Correct records a corrected transcript for a sample. Recording does not
// start training; fine-tuning is a separate explicit call.
func (h *SamplesHandler) Correct(c *fiber.Ctx) error {
	user, ok, err := h.requireUser(c)
	if !ok {
		return err
	}

	var body struct {
		CorrectedText string `json:"corrected_text"`
		CorrectedBy   string `json:"corrected_by"`
	}
	if err := c.BodyParser(&body); err != nil || body.CorrectedText == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "corrected_text is required",
			"code":  "ERR_NO_CORRECTION",
		})
	}
	if body.CorrectedBy == "" {
		body.CorrectedBy = user
	}

	example, err := h.recorder.Record(user, c.Params("id"), body.CorrectedBy, body.CorrectedText)
	if err != nil {
		if errors.Is(err, types.ErrSampleNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"error": "Sample not found",
				"code":  "ERR_SAMPLE_NOT_FOUND",
			})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"status":    "recorded",
		"sample_id": example.SampleID,
	})
}

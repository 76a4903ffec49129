package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gopkg.in/yaml.v3"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/audio"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/cleanup"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/dataset"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/handlers"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/model"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/progress"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/queue"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Model struct {
		Runner   string `yaml:"runner"`
		Script   string `yaml:"script"`
		Name     string `yaml:"name"`
		Device   string `yaml:"device"`
		Language string `yaml:"language"`
	} `yaml:"model"`

	Storage struct {
		DataRoot string `yaml:"data_root"`
		TempDir  string `yaml:"temp_dir"`
		Registry string `yaml:"registry"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

func main() {
	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	storageCfg := storage.Config{
		DataRoot:     config.Storage.DataRoot,
		TempDir:      config.Storage.TempDir,
		RegistryPath: config.Storage.Registry,
	}
	if err := storageCfg.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create storage directories: %v", err)
	}
	if err := cleanup.EnsureTempDirExists(storageCfg.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	log.Println("Initializing components...")

	// Model runner gateway
	gateway := model.NewRunner(
		config.Model.Runner,
		config.Model.Script,
		config.Model.Name,
		config.Model.Device,
		storageCfg.TempDir,
	)
	defer gateway.Close()

	// Dataset and storage layers
	store := dataset.NewStore(storageCfg.DataRoot)
	recorder := dataset.NewCorrectionRecorder(store)
	transcripts := storage.NewTranscripts(storageCfg.DataRoot)
	checkpoints := storage.NewCheckpoints(storageCfg.DataRoot)

	registry, err := storage.NewRegistry(storageCfg.RegistryPath)
	if err != nil {
		log.Fatalf("Failed to open user registry: %v", err)
	}
	defer registry.Close()

	// Google Drive backup (optional - may fail if credentials not set up)
	var backup *storage.DriveBackup
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		backup, err = storage.NewDriveBackup(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Samples will only be saved locally")
			backup = nil
		} else {
			log.Println("Google Drive backup enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	// Progress hub and job workers
	hub := progress.NewHub()
	pool := queue.NewPool(queue.Deps{
		Gateway:     gateway,
		BaseModel:   config.Model.Name,
		Language:    config.Model.Language,
		Ingest:      audio.NewIngest(storageCfg.TempDir),
		Store:       store,
		Recorder:    recorder,
		Registry:    registry,
		Transcripts: transcripts,
		Checkpoints: checkpoints,
		Backup:      backup,
		Hub:         hub,
	})
	pool.Start()

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		storageCfg.TempDir,
		config.Cleanup.IntervalMinutes,
		config.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: config.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	usersHandler := handlers.NewUsersHandler(registry)
	transcribeHandler := handlers.NewTranscribeHandler(pool, registry, storageCfg.TempDir, config.Limits.MaxFileSizeMB)
	samplesHandler := handlers.NewSamplesHandler(store, recorder, registry)
	finetuneHandler := handlers.NewFineTuneHandler(pool, registry, checkpoints)
	progressHandler := handlers.NewProgressHandler(hub)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/users", usersHandler.Create)
	app.Get("/users", usersHandler.List)
	app.Get("/users/:name/history", usersHandler.History)

	app.Post("/users/:name/transcriptions", transcribeHandler.Handle)
	app.Get("/users/:name/samples", samplesHandler.List)
	app.Get("/users/:name/samples/:id", samplesHandler.Get)
	app.Post("/users/:name/samples/:id/annotation", samplesHandler.Annotate)
	app.Post("/users/:name/samples/:id/correction", samplesHandler.Correct)

	app.Post("/users/:name/finetune", finetuneHandler.Start)
	app.Get("/users/:name/checkpoints", finetuneHandler.Checkpoints)
	app.Put("/users/:name/checkpoints/active", finetuneHandler.SetActive)

	// Job status
	app.Get("/jobs/:id", func(c *fiber.Ctx) error {
		job, ok := pool.Job(c.Params("id"))
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "Job not found"})
		}
		resp := fiber.Map{
			"job_id":     job.ID,
			"kind":       job.Kind,
			"user":       job.User,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		}
		if job.Error != "" {
			resp["error"] = job.Error
		}
		if job.Result != nil {
			resp["text"] = job.Result.Text
			resp["transcript_file"] = job.TranscriptFile
			resp["dataset_dir"] = job.SampleDir
		}
		if job.Checkpoint != "" {
			resp["checkpoint"] = job.Checkpoint
		}
		return c.JSON(resp)
	})

	// WebSocket progress stream
	app.Get("/ws/progress/:id", websocket.New(progressHandler.Handle))

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /users                              - Create user")
	log.Println("   POST /users/:name/transcriptions         - Upload audio for recognition")
	log.Println("   POST /users/:name/samples/:id/correction - Record corrected transcript")
	log.Println("   POST /users/:name/finetune               - Fine-tune on corrected samples")
	log.Println("   GET  /ws/progress/:id                    - Job progress stream")
	log.Println("   GET  /health                             - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if config.Storage.Registry == "" {
		config.Storage.Registry = filepath.Join(config.Storage.DataRoot, "registry.db")
	}
	return &config, nil
}

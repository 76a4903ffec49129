package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Checkpoints manages each user's fine-tuned model directory: one immutable
// model_<timestamp> directory per completed run, plus the mutable pointer to
// the active checkpoint.
type Checkpoints struct {
	dataRoot string
}

// NewCheckpoints creates a checkpoint manager rooted at dataRoot.
func NewCheckpoints(dataRoot string) *Checkpoints {
	return &Checkpoints{dataRoot: dataRoot}
}

// checkpointInfo is the training_info.json sidecar.
type checkpointInfo struct {
	types.TrainingMetadata
	Parent string `json:"parent,omitempty"`
}

func (c *Checkpoints) userDir(user string) string {
	return filepath.Join(c.dataRoot, "users", user, "finetuned_models")
}

// NewDir allocates a fresh model_<timestamp> directory for a run in progress.
func (c *Checkpoints) NewDir(user string) (name, dir string, err error) {
	base := c.userDir(user)
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, err)
	}

	name = "model_" + time.Now().Format("20060102_150405")
	dir = filepath.Join(base, name)
	for n := 2; ; n++ {
		mkErr := os.Mkdir(dir, 0755)
		if mkErr == nil {
			return name, dir, nil
		}
		if !os.IsExist(mkErr) {
			return "", "", fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, mkErr)
		}
		name = fmt.Sprintf("model_%s_%d", time.Now().Format("20060102_150405"), n)
		dir = filepath.Join(base, name)
	}
}

// WriteMetadata writes the training_info.json sidecar. parent is the
// checkpoint this run was fine-tuned from ("" = base model); it is lineage
// display only, never an ownership edge.
func (c *Checkpoints) WriteMetadata(dir string, meta types.TrainingMetadata, parent string) error {
	info := checkpointInfo{TrainingMetadata: meta, Parent: parent}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "training_info.json"), data, 0644); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSaveCheckpoint, err)
	}
	return nil
}

// List returns the user's checkpoints ordered oldest first, with the active
// flag set from the pointer file.
func (c *Checkpoints) List(user string) ([]types.Checkpoint, error) {
	entries, err := os.ReadDir(c.userDir(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	active, _ := c.Active(user)

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "model_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	checkpoints := make([]types.Checkpoint, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(c.userDir(user), name)
		var info checkpointInfo
		if raw, err := os.ReadFile(filepath.Join(dir, "training_info.json")); err == nil {
			json.Unmarshal(raw, &info)
		}
		checkpoints = append(checkpoints, types.Checkpoint{
			Name:     name,
			Dir:      dir,
			Parent:   info.Parent,
			Active:   name == active,
			Metadata: info.TrainingMetadata,
		})
	}
	return checkpoints, nil
}

// Active returns the name of the user's active checkpoint, or "" when the
// user still runs the base model.
func (c *Checkpoints) Active(user string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.userDir(user), "active"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ActiveDir returns the directory of the active checkpoint, or "" for the
// base model.
func (c *Checkpoints) ActiveDir(user string) (string, error) {
	name, err := c.Active(user)
	if err != nil || name == "" {
		return "", err
	}
	return filepath.Join(c.userDir(user), name), nil
}

// SetActive points the user at checkpoint name. The pointer is the only
// mutable piece of checkpoint state.
func (c *Checkpoints) SetActive(user, name string) error {
	dir := filepath.Join(c.userDir(user), name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("checkpoint %s not found for user %s", name, user)
	}

	pointer := filepath.Join(c.userDir(user), "active")
	tmp, err := os.CreateTemp(c.userDir(user), ".active-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(name); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), pointer)
}

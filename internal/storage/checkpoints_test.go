package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

func TestNewDirAllocatesDistinct(t *testing.T) {
	c := NewCheckpoints(t.TempDir())

	nameA, dirA, err := c.NewDir("alice")
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	nameB, dirB, err := c.NewDir("alice")
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	if nameA == nameB {
		t.Fatalf("colliding checkpoint names: %s", nameA)
	}
	for _, dir := range []string{dirA, dirB} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("checkpoint dir %s not created: %v", dir, err)
		}
	}
}

func TestActiveDefaultsToBase(t *testing.T) {
	c := NewCheckpoints(t.TempDir())

	name, err := c.Active("alice")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if name != "" {
		t.Errorf("active = %q, want base model", name)
	}

	dir, err := c.ActiveDir("alice")
	if err != nil {
		t.Fatalf("ActiveDir: %v", err)
	}
	if dir != "" {
		t.Errorf("active dir = %q, want empty for base model", dir)
	}
}

func TestSetActive(t *testing.T) {
	c := NewCheckpoints(t.TempDir())

	name, dir, err := c.NewDir("alice")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.SetActive("alice", name); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	got, err := c.Active("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != name {
		t.Errorf("active = %q, want %q", got, name)
	}

	gotDir, err := c.ActiveDir("alice")
	if err != nil {
		t.Fatal(err)
	}
	if gotDir != dir {
		t.Errorf("active dir = %q, want %q", gotDir, dir)
	}
}

func TestSetActiveUnknownCheckpoint(t *testing.T) {
	c := NewCheckpoints(t.TempDir())
	if err := c.SetActive("alice", "model_20990101_000000"); err == nil {
		t.Error("SetActive accepted a missing checkpoint")
	}
}

func TestListWithMetadataAndLineage(t *testing.T) {
	c := NewCheckpoints(t.TempDir())

	firstName, firstDir, err := c.NewDir("alice")
	if err != nil {
		t.Fatal(err)
	}
	firstMeta := types.TrainingMetadata{
		Timestamp: "20260828_100000", BaseModel: "base",
		Epochs: 3, BatchSize: 2, LearningRate: 1e-5,
		FinalLoss: 0.42, DatasetSize: 10, Completed: true,
	}
	if err := c.WriteMetadata(firstDir, firstMeta, ""); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	secondName, secondDir, err := c.NewDir("alice")
	if err != nil {
		t.Fatal(err)
	}
	secondMeta := firstMeta
	secondMeta.FinalLoss = 0.21
	if err := c.WriteMetadata(secondDir, secondMeta, firstName); err != nil {
		t.Fatal(err)
	}

	if err := c.SetActive("alice", secondName); err != nil {
		t.Fatal(err)
	}

	list, err := c.List("alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(list))
	}
	if list[0].Name != firstName || list[1].Name != secondName {
		t.Errorf("order = %s, %s", list[0].Name, list[1].Name)
	}
	if list[0].Active || !list[1].Active {
		t.Errorf("active flags = %v, %v", list[0].Active, list[1].Active)
	}
	if list[1].Parent != firstName {
		t.Errorf("parent = %q, want %q", list[1].Parent, firstName)
	}
	if list[0].Metadata.FinalLoss != 0.42 || list[1].Metadata.FinalLoss != 0.21 {
		t.Errorf("losses = %v, %v", list[0].Metadata.FinalLoss, list[1].Metadata.FinalLoss)
	}
}

func TestListNoCheckpoints(t *testing.T) {
	c := NewCheckpoints(t.TempDir())
	list, err := c.List("alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %+v, want none", list)
	}
}

func TestActivePointerSurvivesRewrite(t *testing.T) {
	c := NewCheckpoints(t.TempDir())

	nameA, _, err := c.NewDir("alice")
	if err != nil {
		t.Fatal(err)
	}
	nameB, _, err := c.NewDir("alice")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.SetActive("alice", nameA); err != nil {
		t.Fatal(err)
	}
	if err := c.SetActive("alice", nameB); err != nil {
		t.Fatal(err)
	}

	got, err := c.Active("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != nameB {
		t.Errorf("active = %q, want %q", got, nameB)
	}

	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Join(c.dataRoot, "users", "alice", "finetuned_models"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != nameA && e.Name() != nameB && e.Name() != "active" {
			t.Errorf("unexpected entry %s", e.Name())
		}
	}
}

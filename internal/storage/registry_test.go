package storage

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(":memory:")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestCreateUser(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.CreateUser("alice"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	exists, err := r.UserExists("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("alice not found after create")
	}

	exists, err = r.UserExists("bob")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("bob reported as existing")
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.CreateUser("alice"); err != nil {
		t.Fatal(err)
	}
	err := r.CreateUser("alice")
	if !errors.Is(err, types.ErrUserExists) {
		t.Errorf("err = %v, want ErrUserExists", err)
	}
}

func TestListUsers(t *testing.T) {
	r := newTestRegistry(t)

	names, err := r.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("fresh registry lists users: %v", names)
	}

	for _, name := range []string{"alice", "bob", "carol"} {
		if err := r.CreateUser(name); err != nil {
			t.Fatal(err)
		}
	}

	names, err = r.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"alice", "bob", "carol"}) {
		t.Errorf("users = %v", names)
	}
}

func TestHistoryOrder(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateUser("alice"); err != nil {
		t.Fatal(err)
	}

	entries := []types.HistoryEntry{
		{Date: "2026-08-28 10:00:00", InputFile: "a.wav", OutputText: "first", TranscriptFile: "t1.txt", DatasetDir: "d1"},
		{Date: "2026-08-28 10:05:00", InputFile: "b.wav", OutputText: "second", TranscriptFile: "t2.txt", DatasetDir: "d2"},
		{Date: "2026-08-28 10:10:00", InputFile: "c.wav", OutputText: "third", TranscriptFile: "t3.txt", DatasetDir: "d3"},
	}
	for _, e := range entries {
		if err := r.AppendHistory("alice", e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	got, err := r.History("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Errorf("history = %+v, want %+v", got, entries)
	}
}

func TestHistoryPerUser(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"alice", "bob"} {
		if err := r.CreateUser(name); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.AppendHistory("alice", types.HistoryEntry{Date: "d", InputFile: "a.wav", OutputText: "alice text"}); err != nil {
		t.Fatal(err)
	}

	got, err := r.History("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("bob history = %+v, want none", got)
	}

	got, err = r.History("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].OutputText != "alice text" {
		t.Errorf("alice history = %+v", got)
	}
}

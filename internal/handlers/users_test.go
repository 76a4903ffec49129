package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/storage"
	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

func newUsersApp(t *testing.T) (*fiber.App, *storage.Registry) {
	t.Helper()
	registry, err := storage.NewRegistry(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })

	h := NewUsersHandler(registry)
	app := fiber.New()
	app.Post("/users", h.Create)
	app.Get("/users", h.List)
	app.Get("/users/:name/history", h.History)
	return app, registry
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]interface{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode, payload
}

func TestCreateUserEndpoint(t *testing.T) {
	app, _ := newUsersApp(t)

	status, payload := doJSON(t, app, http.MethodPost, "/users", `{"name":"alice"}`)
	if status != 201 {
		t.Fatalf("status = %d, want 201 (%v)", status, payload)
	}
	if payload["name"] != "alice" {
		t.Errorf("payload = %v", payload)
	}
}

func TestCreateUserValidation(t *testing.T) {
	app, _ := newUsersApp(t)

	cases := []struct {
		body string
		code string
	}{
		{`{}`, "ERR_NO_NAME"},
		{`{"name":""}`, "ERR_NO_NAME"},
		{`{"name":"../etc"}`, "ERR_BAD_NAME"},
		{`{"name":"has space"}`, "ERR_BAD_NAME"},
	}
	for _, tc := range cases {
		status, payload := doJSON(t, app, http.MethodPost, "/users", tc.body)
		if status != 400 {
			t.Errorf("body %s: status = %d, want 400", tc.body, status)
		}
		if payload["code"] != tc.code {
			t.Errorf("body %s: code = %v, want %s", tc.body, payload["code"], tc.code)
		}
	}
}

func TestCreateUserConflict(t *testing.T) {
	app, _ := newUsersApp(t)

	if status, _ := doJSON(t, app, http.MethodPost, "/users", `{"name":"alice"}`); status != 201 {
		t.Fatalf("first create status = %d", status)
	}
	status, payload := doJSON(t, app, http.MethodPost, "/users", `{"name":"alice"}`)
	if status != 409 {
		t.Errorf("status = %d, want 409", status)
	}
	if payload["code"] != "ERR_USER_EXISTS" {
		t.Errorf("code = %v", payload["code"])
	}
}

func TestListUsersEndpoint(t *testing.T) {
	app, _ := newUsersApp(t)

	status, payload := doJSON(t, app, http.MethodGet, "/users", "")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if users, ok := payload["users"].([]interface{}); !ok || len(users) != 0 {
		t.Errorf("empty registry users = %v", payload["users"])
	}

	doJSON(t, app, http.MethodPost, "/users", `{"name":"alice"}`)
	doJSON(t, app, http.MethodPost, "/users", `{"name":"bob"}`)

	_, payload = doJSON(t, app, http.MethodGet, "/users", "")
	users, _ := payload["users"].([]interface{})
	if len(users) != 2 {
		t.Errorf("users = %v, want alice and bob", users)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	app, registry := newUsersApp(t)

	status, payload := doJSON(t, app, http.MethodGet, "/users/alice/history", "")
	if status != 404 {
		t.Errorf("unknown user status = %d, want 404", status)
	}
	if payload["code"] != "ERR_USER_NOT_FOUND" {
		t.Errorf("code = %v", payload["code"])
	}

	if err := registry.CreateUser("alice"); err != nil {
		t.Fatal(err)
	}
	if err := registry.AppendHistory("alice", types.HistoryEntry{
		Date: "20260828_120000", InputFile: "a.wav", OutputText: "hello",
	}); err != nil {
		t.Fatal(err)
	}

	status, payload = doJSON(t, app, http.MethodGet, "/users/alice/history", "")
	if status != 200 {
		t.Fatalf("status = %d (%v)", status, payload)
	}
	history, ok := payload["history"].([]interface{})
	if !ok || len(history) != 1 {
		t.Fatalf("history = %v", payload["history"])
	}
	entry, _ := history[0].(map[string]interface{})
	if entry["input_file"] != "a.wav" || entry["output_text"] != "hello" {
		t.Errorf("entry = %v", entry)
	}
}

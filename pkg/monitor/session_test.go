// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestSessionLogin_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/login") {
			writeJSON(t, w, http.StatusNotFound, map[string]string{"errcode": "M_UNRECOGNIZED", "error": "unknown endpoint"})
			return
		}
		var req struct {
			Type       string `json:"type"`
			Password   string `json:"password"`
			Identifier struct {
				User string `json:"user"`
			} `json:"identifier"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login request: %v", err)
		}
		if req.Type != "m.login.password" {
			t.Errorf("login type: got %q, want %q", req.Type, "m.login.password")
		}
		if req.Identifier.User != "monitor" || req.Password != "hunter2" {
			t.Errorf("credentials: got %q/%q", req.Identifier.User, req.Password)
		}
		writeJSON(t, w, http.StatusOK, map[string]string{
			"user_id":      "@monitor:example.com",
			"access_token": "syt_token",
			"device_id":    "DEVICE",
		})
	}))
	defer srv.Close()

	s := NewSession(srv.URL, "monitor", "hunter2", "", testLogger())
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.LoggedIn() {
		t.Fatal("LoggedIn: got false, want true")
	}
	if got := s.UserID(); got != "@monitor:example.com" {
		t.Errorf("UserID: got %q, want %q", got, "@monitor:example.com")
	}
	client, err := s.Client()
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if client.AccessToken != "syt_token" {
		t.Errorf("AccessToken: got %q, want %q", client.AccessToken, "syt_token")
	}
}

func TestSessionLogin_BadPassword(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))
	defer srv.Close()

	s := NewSession(srv.URL, "monitor", "wrong", "", testLogger())
	err := s.Login(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %T (%v), want *AuthError", err, err)
	}
	if authErr.Message != "Invalid password" {
		t.Errorf("Message: got %q, want the server-supplied text", authErr.Message)
	}
	if s.LoggedIn() {
		t.Error("session must stay unauthenticated after a failed login")
	}
	if _, err := s.Client(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Client: got %v, want ErrNotAuthenticated", err)
	}
}

func TestSessionRegister_NewUser(t *testing.T) {
	t.Parallel()
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/_synapse/admin/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer admintok" {
			t.Errorf("Authorization: got %q, want the admin token", got)
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "User not found"})
		case http.MethodPut:
			created = true
			writeJSON(t, w, http.StatusCreated, map[string]string{"name": "@fresh:127.0.0.1"})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	s := NewSession(srv.URL, "monitor", "pw", "admintok", testLogger())
	if err := s.Register(context.Background(), "fresh", "pw2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created {
		t.Error("expected the PUT that creates the account")
	}
}

func TestSessionRegister_Conflict(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s, existence check must stop the flow", r.Method)
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"name": "@taken:127.0.0.1"})
	}))
	defer srv.Close()

	s := NewSession(srv.URL, "monitor", "pw", "admintok", testLogger())
	err := s.Register(context.Background(), "taken", "pw2")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

func TestSessionRegister_NoAdminToken(t *testing.T) {
	t.Parallel()
	s := NewSession("https://matrix.example.com", "monitor", "pw", "", testLogger())
	err := s.Register(context.Background(), "fresh", "pw2")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %T (%v), want *AuthError", err, err)
	}
}

func TestSessionDeleteSelf(t *testing.T) {
	t.Parallel()
	var deactivated bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			writeJSON(t, w, http.StatusOK, map[string]string{
				"user_id":      "@monitor:127.0.0.1",
				"access_token": "tok",
				"device_id":    "DEV",
			})
		case strings.Contains(r.URL.Path, "/_synapse/admin/v1/deactivate/"):
			var req struct {
				Erase bool `json:"erase"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Erase {
				t.Errorf("deactivate request must carry erase=true (err=%v)", err)
			}
			deactivated = true
			writeJSON(t, w, http.StatusOK, map[string]string{"id_server_unbind_result": "success"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			writeJSON(t, w, http.StatusNotFound, map[string]string{"errcode": "M_NOT_FOUND", "error": "nope"})
		}
	}))
	defer srv.Close()

	s := NewSession(srv.URL, "monitor", "pw", "admintok", testLogger())
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.DeleteSelf(context.Background()); err != nil {
		t.Fatalf("DeleteSelf: %v", err)
	}
	if !deactivated {
		t.Error("expected the deactivate call")
	}
	if s.LoggedIn() {
		t.Error("session must be cleared after deactivation")
	}
}

func TestSessionDeleteSelf_RequiresLogin(t *testing.T) {
	t.Parallel()
	s := NewSession("https://matrix.example.com", "monitor", "pw", "admintok", testLogger())
	if err := s.DeleteSelf(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("got %v, want ErrNotAuthenticated", err)
	}
}

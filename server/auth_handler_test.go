package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ZenMix/core/audio"
	"ZenMix/core/auth"
	"ZenMix/core/mixer"
)

type stubAdapter struct{}

func (stubAdapter) Name() string { return "stub" }

func (stubAdapter) Load(ctx context.Context, url string) (audio.Handle, error) {
	return nil, errors.New("no playback in tests")
}

func newLogoutHarness(t *testing.T) (*APIHandler, *mixer.Manager, *auth.JWT) {
	t.Helper()
	jwt := auth.NewJWT("test-secret", time.Hour)
	sessions := mixer.NewManager(stubAdapter{}, mixer.Options{Tick: 10 * time.Millisecond})
	t.Cleanup(sessions.CloseAll)
	return NewAPIHandler(nil, jwt, nil, nil, nil, sessions), sessions, jwt
}

func TestLogoutClosesMixerSession(t *testing.T) {
	h, sessions, jwt := newLogoutHarness(t)

	const userID = int64(42)
	sessions.Get(userID)
	if sessions.Peek(userID) == nil {
		t.Fatal("expected a live session before logout")
	}

	token, err := jwt.GenerateToken(userID, "rainlover")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	h.AuthMiddleware(h.LogoutHandler)(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if sessions.Peek(userID) != nil {
		t.Fatal("session survived logout")
	}
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	h, _, jwt := newLogoutHarness(t)

	token, err := jwt.GenerateToken(7, "quiet")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	h.AuthMiddleware(h.LogoutHandler)(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestLogoutRejectsMissingToken(t *testing.T) {
	h, _, _ := newLogoutHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()

	h.AuthMiddleware(h.LogoutHandler)(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

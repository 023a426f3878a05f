package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

func (s *Server) captureScreenshots(w http.ResponseWriter, r *http.Request) {
	req := capture.DefaultRequest()
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	env, err := s.deps.Capturer.Execute(r.Context(), req)
	if err = timedOut(r, err); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type retryRequest struct {
	URL            string `json:"url"`
	ViewportWidth  int    `json:"viewport_width"`
	ViewportHeight int    `json:"viewport_height"`
}

// retryScreenshot re-captures a single URL as a full page and answers with
// its result alone.
func (s *Server) retryScreenshot(w http.ResponseWriter, r *http.Request) {
	var body retryRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req := capture.DefaultRequest()
	req.URLs = []string{body.URL}
	req.Mode = capture.ModeFullPage
	if body.ViewportWidth > 0 {
		req.Viewport.Width = body.ViewportWidth
	}
	if body.ViewportHeight > 0 {
		req.Viewport.Height = body.ViewportHeight
	}
	env, err := s.deps.Capturer.Execute(r.Context(), req)
	if err = timedOut(r, err); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(env.Results) != 1 {
		s.fail(w, r, fmt.Errorf("retry produced %d results", len(env.Results)))
		return
	}
	writeJSON(w, http.StatusOK, env.Results[0])
}

type cancelRequest struct {
	RequestID string `json:"request_id"`
}

type cancelResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Cancelled *int   `json:"cancelled,omitempty"`
}

// cancelCapture cancels one request when an id is supplied, otherwise every
// active request.
func (s *Server) cancelCapture(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if id == "" && r.ContentLength != 0 {
		var body cancelRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.fail(w, r, capture.InvalidInput("invalid JSON: %s", strings.TrimPrefix(err.Error(), "json: ")))
			return
		}
		id = strings.TrimSpace(body.RequestID)
	}

	if id == "" {
		n := s.deps.Capturer.CancelAll()
		s.logger.Info("bulk cancellation requested", zap.Int("requests", n))
		writeJSON(w, http.StatusOK, cancelResponse{
			Status:    "success",
			Message:   fmt.Sprintf("Cancellation requested for %d active request(s)", n),
			Cancelled: &n,
		})
		return
	}
	if !s.deps.Capturer.Cancel(id) {
		writeJSON(w, http.StatusOK, cancelResponse{
			Status:  "not_found",
			Message: "Request not found or already completed",
		})
		return
	}
	s.logger.Info("cancellation requested", zap.String("capture_request_id", id))
	writeJSON(w, http.StatusOK, cancelResponse{
		Status:  "success",
		Message: fmt.Sprintf("Cancellation requested for request %s", id),
	})
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if strings.TrimSpace(p) == "" {
		s.fail(w, r, capture.InvalidInput("path is required"))
		return
	}
	rc, err := s.deps.Artifacts.Open(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Debug("artifact close failed", zap.Error(cerr))
		}
	}()
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filepath.Base(p), time.Time{}, rs)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("artifact stream failed", zap.String("path", p), zap.Error(err))
	}
}

type saveAuthResponse struct {
	OK bool `json:"ok"`
	auth.SaveSummary
	Message string `json:"message"`
}

func (s *Server) saveAuth(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, capture.InvalidInput("read body: %v", err))
		return
	}
	summary, err := s.deps.Auth.Save(r.Context(), raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveAuthResponse{
		OK:          true,
		SaveSummary: summary,
		Message: fmt.Sprintf("Saved %d cookies and %d localStorage items",
			summary.CookieCount, summary.LocalStorageCount),
	})
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Auth.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) clearAuth(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Auth.Clear(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := "No saved auth state"
	if removed {
		msg = "Auth state cleared"
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed, "message": msg})
}

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/storage"
	"github.com/sjawhar/call-insights/internal/transcribe"
)

const maxUploadBytes = 64 << 20

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetFlushes(sessionID string) ([]storage.FlushRecord, error)
	SentimentCounts(sessionID string) (map[string]int, error)
	GetDates() ([]string, error)
}

type segmentAnalysis struct {
	Text      string          `json:"text"`
	Sentiment sentiment.Label `json:"sentiment"`
}

func registerAPIRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("GET /{$}", d.instrument("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "call-insights API running"})
	}))

	mux.HandleFunc("POST /api/transcribe", d.instrument("/api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		text, status, err := d.transcribeUpload(w, r)
		if err != nil {
			writeJSONError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
	}))

	mux.HandleFunc("POST /api/sentiment", d.instrument("/api/sentiment", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text *string `json:"text"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil || payload.Text == nil {
			writeJSONError(w, http.StatusBadRequest, "body must be JSON with a text field")
			return
		}
		writeJSON(w, http.StatusOK, segmentAnalysis{
			Text:      *payload.Text,
			Sentiment: d.classify(r.Context(), *payload.Text),
		})
	}))

	mux.HandleFunc("POST /api/process-call", d.instrument("/api/process-call", func(w http.ResponseWriter, r *http.Request) {
		text, status, err := d.transcribeUpload(w, r)
		if err != nil {
			writeJSONError(w, status, err.Error())
			return
		}
		analysis := []segmentAnalysis{}
		for _, seg := range transcribe.SplitSentences(text) {
			analysis = append(analysis, segmentAnalysis{Text: seg, Sentiment: d.classify(r.Context(), seg)})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transcript": text,
			"analysis":   analysis,
		})
	}))

	mux.HandleFunc("GET /api/sessions", d.instrument("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if !d.requireStore(w) {
			return
		}
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := d.Store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		if sessions == nil {
			sessions = []storage.Session{}
		}

		writeJSON(w, http.StatusOK, sessions)
	}))

	mux.HandleFunc("GET /api/sessions/active", d.instrument("/api/sessions/active", func(w http.ResponseWriter, r *http.Request) {
		active := []string{}
		if d.Registry != nil {
			active = append(active, d.Registry.Active()...)
		}
		writeJSON(w, http.StatusOK, active)
	}))

	mux.HandleFunc("GET /api/sessions/{id}", d.instrument("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		if !d.requireStore(w) {
			return
		}

		sessionData, err := d.Store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		flushes, err := d.Store.GetFlushes(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session flushes: %v", err))
			return
		}
		if flushes == nil {
			flushes = []storage.FlushRecord{}
		}

		counts, err := d.Store.SentimentCounts(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get sentiment counts: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session":   sessionData,
			"flushes":   flushes,
			"sentiment": counts,
		})
	}))

	mux.HandleFunc("GET /api/dates", d.instrument("/api/dates", func(w http.ResponseWriter, r *http.Request) {
		if !d.requireStore(w) {
			return
		}
		dates, err := d.Store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, http.StatusOK, dates)
	}))

	mux.HandleFunc("GET /api/status", d.instrument("/api/status", func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if d.Registry != nil {
			active = len(d.Registry.Active())
		}
		warnings := d.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		monitors, dropped := 0, int64(0)
		if d.Hub != nil {
			monitors, dropped = d.Hub.Subscribers(), d.Hub.Dropped()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"active_sessions": active,
			"monitors":        monitors,
			"monitor_drops":   dropped,
			"audit_store":     d.Store != nil,
			"warnings":        warnings,
		})
	}))
}

// transcribeUpload runs a one-shot file through the same normalize and
// transcribe path a streamed utterance takes. It returns the HTTP status to
// use on error.
func (d Deps) transcribeUpload(w http.ResponseWriter, r *http.Request) (string, int, error) {
	if d.Normalizer == nil || d.Transcriber == nil {
		return "", http.StatusServiceUnavailable, errors.New("transcription is not configured")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("multipart field file is required: %w", err)
	}
	defer func() { _ = file.Close() }()

	raw, err := io.ReadAll(file)
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
	}

	id := "upload-" + newSessionID()
	res := d.Normalizer.Normalize(r.Context(), raw, id, audio.NewHeaderCache())
	if len(res.Audio) == 0 {
		return "", http.StatusUnprocessableEntity, fmt.Errorf("unusable audio (%s): %w", res.Reason, res.Reason.Err())
	}

	return d.Transcriber.Transcribe(r.Context(), res.Audio, id, 1), http.StatusOK, nil
}

func (d Deps) classify(ctx context.Context, text string) sentiment.Label {
	if d.Classifier == nil {
		return sentiment.Heuristic(text)
	}
	return d.Classifier.Classify(ctx, text)
}

func (d Deps) requireStore(w http.ResponseWriter) bool {
	if d.Store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "audit store is disabled")
		return false
	}
	return true
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rally-tagger/internal/annotate"
	"rally-tagger/internal/api"
	"rally-tagger/internal/capture"
	"rally-tagger/internal/config"
	"rally-tagger/internal/database"
	"rally-tagger/internal/db"
	"rally-tagger/internal/domain"
	"rally-tagger/internal/repository"
	"rally-tagger/internal/service"
	"rally-tagger/internal/session"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	manager *session.Manager
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	sqlDB, err := database.Open(database.MemoryPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	log := zerolog.Nop()
	q := db.New(sqlDB)
	matches := repository.NewMatchRepository(sqlDB, q, log)
	sets := repository.NewSetRepository(sqlDB, q, log)
	rallies := repository.NewRallyRepository(sqlDB, q, log)
	fin := service.NewFinalizeService(matches, sets, log)
	svc := service.NewSessionService(matches, sets, rallies, fin, log)

	opts := session.Options{
		FlushInterval: time.Hour,
		TagSpeed:      1,
		Preview:       annotate.Preview{Lead: 1.5, Tail: 2},
		FrameStep:     1.0 / 30,
	}
	manager := session.NewManager(svc, svc, repository.NewTaggingStore(sets, rallies),
		api.NewWebhookClient(&config.Config{}, log), opts, log)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	return &testServer{t: t, handler: NewTaggingServer(manager, svc, log).Routes(), manager: manager}
}

func (ts *testServer) do(method, path string, body any, out any) int {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			ts.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

type annotateBody struct {
	Question annotate.Question `json:"question"`
	Total    int               `json:"total"`
}

type snapshotBody struct {
	Phase      domain.Phase      `json:"phase"`
	Score      domain.Score      `json:"score"`
	Annotate   *annotateBody     `json:"annotate"`
	Directives []json.RawMessage `json:"directives"`
}

func (ts *testServer) createMatch() createMatchResponse {
	ts.t.Helper()
	var created createMatchResponse
	code := ts.do(http.MethodPost, "/api/matches", createMatchRequest{PlayerA: "Ito", PlayerB: "Sun", BestOf: 3}, &created)
	if code != http.StatusCreated {
		ts.t.Fatalf("create match: status %d", code)
	}
	return created
}

func TestTaggingServer_CaptureAndAnnotate(t *testing.T) {
	ts := setupServer(t)
	created := ts.createMatch()
	if len(created.Sets) != 3 {
		t.Fatalf("expected 3 sets, got %d", len(created.Sets))
	}
	setID := created.Sets[0].ID
	base := "/api/sets/" + setID + "/session"

	var res service.Resumability
	if code := ts.do(http.MethodGet, fmt.Sprintf("/api/matches/%s/sets/1/resumability", created.Match.ID), nil, &res); code != http.StatusOK {
		t.Fatalf("resumability: status %d", code)
	}
	if res.Action != domain.ActionStart || res.SetID != setID {
		t.Errorf("resumability = %+v", res)
	}

	if code := ts.do(http.MethodPost, base, startRequest{FirstServer: "X"}, nil); code != http.StatusBadRequest {
		t.Errorf("start with bad server: status %d, want 400", code)
	}

	var snap snapshotBody
	if code := ts.do(http.MethodPost, base, startRequest{FirstServer: domain.SideA}, &snap); code != http.StatusCreated {
		t.Fatalf("start: status %d", code)
	}
	if snap.Phase != domain.PhaseCaptureActive || len(snap.Directives) == 0 {
		t.Errorf("start snapshot = %+v", snap)
	}
	if code := ts.do(http.MethodPost, base, startRequest{FirstServer: domain.SideA}, nil); code != http.StatusConflict {
		t.Errorf("second start: status %d, want 409", code)
	}

	ts.do(http.MethodPost, base+"/shot", timeRequest{Time: 1.0}, nil)
	ts.do(http.MethodPost, base+"/shot", timeRequest{Time: 1.6}, nil)
	if code := ts.do(http.MethodPost, base+"/end", endRequest{Condition: domain.EndWinner, Time: 2.2}, &snap); code != http.StatusOK {
		t.Fatalf("end rally: status %d", code)
	}
	if snap.Score.A+snap.Score.B != 1 {
		t.Errorf("score after one rally = %+v", snap.Score)
	}

	var rejected errorResponse
	if code := ts.do(http.MethodPost, base+"/answer", answerRequest{Grid: &gridPress{Row: 0, Col: 0}}, &rejected); code != http.StatusConflict {
		t.Errorf("answer during capture: status %d, want 409", code)
	}
	if rejected.Snapshot == nil || rejected.Error == "" {
		t.Errorf("rejected action should carry error and snapshot: %+v", rejected)
	}

	if code := ts.do(http.MethodPost, base+"/finish-capture", nil, &snap); code != http.StatusOK {
		t.Fatalf("finish capture: status %d", code)
	}
	if snap.Phase != domain.PhaseAnnotateActive || snap.Annotate == nil {
		t.Fatalf("after finish capture = %+v", snap)
	}
	if snap.Annotate.Total != 2 || snap.Annotate.Question != annotate.QuestionDirection {
		t.Errorf("annotate view = %+v", snap.Annotate)
	}

	if code := ts.do(http.MethodPost, base+"/answer", answerRequest{Grid: &gridPress{Row: 0, Col: 2}}, &snap); code != http.StatusOK {
		t.Fatalf("grid answer: status %d", code)
	}
	if snap.Annotate.Question != annotate.QuestionDepth {
		t.Errorf("question after direction = %q", snap.Annotate.Question)
	}
	if code := ts.do(http.MethodPost, base+"/answer", answerRequest{Annotation: domain.Annotation{Depth: "deep"}}, nil); code != http.StatusBadRequest {
		t.Errorf("invalid depth: status %d, want 400", code)
	}
	if code := ts.do(http.MethodPost, base+"/rotation", rotationRequest{Side: "C"}, nil); code != http.StatusBadRequest {
		t.Errorf("invalid rotation side: status %d, want 400", code)
	}
	ts.do(http.MethodPost, base+"/answer", answerRequest{Annotation: domain.Annotation{Depth: domain.DepthShort}}, nil)
	if code := ts.do(http.MethodPost, base+"/answer", answerRequest{Annotation: domain.Annotation{Spin: domain.SpinBackspin}}, &snap); code != http.StatusOK {
		t.Fatalf("spin answer: status %d", code)
	}
	if snap.Annotate.Question == annotate.QuestionDepth || snap.Annotate.Question == annotate.QuestionSpin {
		t.Errorf("serve questions still open: %q", snap.Annotate.Question)
	}

	var saved saveResponse
	if code := ts.do(http.MethodPost, base+"/save", nil, &saved); code != http.StatusOK {
		t.Fatalf("save: status %d", code)
	}

	var rallies []domain.Rally
	if code := ts.do(http.MethodGet, "/api/sets/"+setID+"/rallies", nil, &rallies); code != http.StatusOK {
		t.Fatalf("rallies: status %d", code)
	}
	if len(rallies) != 1 || len(rallies[0].Shots) != 2 {
		t.Fatalf("stored rallies = %+v", rallies)
	}
	serve := rallies[0].Shots[0].Annotation
	if serve.Direction == "" || serve.Depth != domain.DepthShort || serve.Spin != domain.SpinBackspin {
		t.Errorf("serve annotation not stored: %+v", serve)
	}
}

func TestTaggingServer_SessionErrors(t *testing.T) {
	ts := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"no session", http.MethodGet, "/api/sets/missing/session", nil, http.StatusNotFound},
		{"action without session", http.MethodPost, "/api/sets/missing/session/undo", nil, http.StatusNotFound},
		{"start unknown set", http.MethodPost, "/api/sets/missing/session", startRequest{FirstServer: domain.SideA}, http.StatusNotFound},
		{"bad set number", http.MethodGet, "/api/matches/m/sets/zero/resumability", nil, http.StatusBadRequest},
		{"unknown match", http.MethodPost, "/api/matches/missing/finalize", nil, http.StatusNotFound},
		{"create without players", http.MethodPost, "/api/matches", createMatchRequest{BestOf: 3}, http.StatusBadRequest},
		{"redo bad scope", http.MethodPost, "/api/sets/missing/redo", redoRequest{Scope: "everything"}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/sets/missing/session/shot", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ts.do(tt.method, tt.path, tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTaggingServer_BodyLimit(t *testing.T) {
	ts := setupServer(t)
	body := `{"player_a":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/matches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestTaggingServer_RedoClosesSession(t *testing.T) {
	ts := setupServer(t)
	created := ts.createMatch()
	setID := created.Sets[0].ID
	base := "/api/sets/" + setID + "/session"

	ts.do(http.MethodPost, base, startRequest{FirstServer: domain.SideB}, nil)
	ts.do(http.MethodPost, base+"/shot", timeRequest{Time: 3}, nil)
	ts.do(http.MethodPost, base+"/end", endRequest{Condition: domain.EndLong, Time: 3.4}, nil)

	if code := ts.do(http.MethodPost, "/api/sets/"+setID+"/redo", redoRequest{Scope: domain.ScopeAll}, nil); code != http.StatusOK {
		t.Fatalf("redo: status %d", code)
	}
	if _, err := ts.manager.Get(setID); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("session still open after redo: %v", err)
	}

	var rallies []domain.Rally
	ts.do(http.MethodGet, "/api/sets/"+setID+"/rallies", nil, &rallies)
	if len(rallies) != 0 {
		t.Errorf("expected no rallies after redo, got %d", len(rallies))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: no rally to end", capture.ErrNotAllowed), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", annotate.ErrMissingAnswer), http.StatusBadRequest},
		{session.ErrOpenRally, http.StatusConflict},
		{service.ErrUnknownScope, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

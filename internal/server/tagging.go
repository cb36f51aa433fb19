package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"rally-tagger/internal/annotate"
	"rally-tagger/internal/capture"
	"rally-tagger/internal/constants"
	"rally-tagger/internal/domain"
	"rally-tagger/internal/persistence"
	"rally-tagger/internal/repository"
	"rally-tagger/internal/service"
	"rally-tagger/internal/session"
	"rally-tagger/internal/video"
)

const APIPrefix = "/api/"

var errBadRequest = errors.New("bad request")

// TaggingServer exposes matches, sets and live tagging sessions as JSON.
type TaggingServer struct {
	sessions *session.Manager
	svc      *service.SessionService
	logger   zerolog.Logger
}

func NewTaggingServer(sessions *session.Manager, svc *service.SessionService, logger zerolog.Logger) *TaggingServer {
	return &TaggingServer{sessions: sessions, svc: svc, logger: logger}
}

func (s *TaggingServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/matches", s.createMatch)
	mux.HandleFunc("GET /api/matches/{matchID}/sets/{setNumber}/resumability", s.resumability)
	mux.HandleFunc("POST /api/matches/{matchID}/finalize", s.finalize)

	mux.HandleFunc("GET /api/sets/{setID}/rallies", s.rallies)
	mux.HandleFunc("POST /api/sets/{setID}/redo", s.redo)

	mux.HandleFunc("POST /api/sets/{setID}/session", s.start)
	mux.HandleFunc("POST /api/sets/{setID}/session/resume", s.resume)
	mux.HandleFunc("GET /api/sets/{setID}/session", s.snapshot)
	mux.HandleFunc("DELETE /api/sets/{setID}/session", s.closeSession)

	mux.HandleFunc("POST /api/sets/{setID}/session/shot", s.recordShot)
	mux.HandleFunc("POST /api/sets/{setID}/session/end", s.endRally)
	mux.HandleFunc("POST /api/sets/{setID}/session/undo", s.action((*session.Session).Undo))
	mux.HandleFunc("POST /api/sets/{setID}/session/step-back", s.action((*session.Session).StepBack))
	mux.HandleFunc("POST /api/sets/{setID}/session/step-forward", s.action((*session.Session).StepForward))
	mux.HandleFunc("POST /api/sets/{setID}/session/live", s.action((*session.Session).GoLive))
	mux.HandleFunc("POST /api/sets/{setID}/session/frame", s.stepFrame)
	mux.HandleFunc("POST /api/sets/{setID}/session/finish-capture", s.finishCapture)

	mux.HandleFunc("POST /api/sets/{setID}/session/answer", s.answer)
	mux.HandleFunc("POST /api/sets/{setID}/session/review-back", s.action((*session.Session).ReviewBack))
	mux.HandleFunc("POST /api/sets/{setID}/session/review-forward", s.action((*session.Session).ReviewForward))
	mux.HandleFunc("POST /api/sets/{setID}/session/rotation", s.rotation)
	mux.HandleFunc("POST /api/sets/{setID}/session/save", s.save)

	return mux
}

type createMatchRequest struct {
	PlayerA  string `json:"player_a"`
	PlayerB  string `json:"player_b"`
	BestOf   int    `json:"best_of"`
	VideoURL string `json:"video_url"`
}

type createMatchResponse struct {
	Match *domain.Match `json:"match"`
	Sets  []domain.Set  `json:"sets"`
}

func (s *TaggingServer) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.PlayerA == "" || req.PlayerB == "" {
		s.fail(w, r, fmt.Errorf("%w: both players are required", errBadRequest), nil)
		return
	}

	match := &domain.Match{PlayerA: req.PlayerA, PlayerB: req.PlayerB, BestOf: req.BestOf, VideoURL: req.VideoURL}
	sets, err := s.svc.CreateMatch(r.Context(), match)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, createMatchResponse{Match: match, Sets: sets})
}

func (s *TaggingServer) resumability(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("setNumber"))
	if err != nil || number < 1 {
		s.fail(w, r, fmt.Errorf("%w: set number %q", errBadRequest, r.PathValue("setNumber")), nil)
		return
	}
	res, err := s.svc.Resumability(r.Context(), r.PathValue("matchID"), number)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *TaggingServer) finalize(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Finalize(r.Context(), r.PathValue("matchID"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *TaggingServer) rallies(w http.ResponseWriter, r *http.Request) {
	rallies, err := s.svc.Rallies(r.Context(), r.PathValue("setID"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if rallies == nil {
		rallies = []domain.Rally{}
	}
	writeJSON(w, http.StatusOK, rallies)
}

type redoRequest struct {
	Scope domain.DeleteScope `json:"scope"`
}

// redo drops the open session, if any, before deleting its stored data so no
// pending write resurrects it.
func (s *TaggingServer) redo(w http.ResponseWriter, r *http.Request) {
	var req redoRequest
	if !s.decode(w, r, &req) {
		return
	}
	setID := r.PathValue("setID")
	if err := s.sessions.Close(r.Context(), setID); err != nil {
		s.log(r).Warn().Err(err).Str("set_id", setID).Msg("open session did not flush before redo")
	}
	res, err := s.svc.Redo(r.Context(), setID, req.Scope)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type startRequest struct {
	FirstServer domain.Side `json:"first_server"`
}

func (s *TaggingServer) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.sessions.Start(r.Context(), r.PathValue("setID"), req.FirstServer)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *TaggingServer) resume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Resume(r.Context(), r.PathValue("setID"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *TaggingServer) snapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *TaggingServer) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), r.PathValue("setID")); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeRequest struct {
	Time float64 `json:"time"`
}

func (s *TaggingServer) recordShot(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		return sess.RecordShot(req.Time)
	})
}

type endRequest struct {
	Condition domain.EndCondition `json:"condition"`
	Time      float64             `json:"time"`
}

func (s *TaggingServer) endRally(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		return sess.EndRally(req.Condition, req.Time)
	})
}

type frameRequest struct {
	Direction    string `json:"direction"`
	IgnoreBounds bool   `json:"ignore_bounds"`
}

func (s *TaggingServer) stepFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if !s.decode(w, r, &req) {
		return
	}
	var dir video.FrameDirection
	switch req.Direction {
	case "forward":
		dir = video.FrameForward
	case "backward":
		dir = video.FrameBackward
	default:
		s.fail(w, r, fmt.Errorf("%w: frame direction %q", errBadRequest, req.Direction), nil)
		return
	}
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		return sess.StepFrame(dir, req.IgnoreBounds)
	})
}

func (s *TaggingServer) finishCapture(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		return sess.FinishCapture(r.Context())
	})
}

type gridPress struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// answerRequest carries either annotation fields or a direction grid press.
type answerRequest struct {
	domain.Annotation
	Grid *gridPress `json:"grid,omitempty"`
}

func (s *TaggingServer) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		if req.Grid != nil {
			return sess.AnswerDirection(req.Grid.Row, req.Grid.Col)
		}
		return sess.Answer(req.Annotation)
	})
}

type rotationRequest struct {
	Side     domain.Side `json:"side"`
	Mirrored bool        `json:"mirrored"`
}

func (s *TaggingServer) rotation(w http.ResponseWriter, r *http.Request) {
	var req rotationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !req.Side.Valid() {
		s.fail(w, r, fmt.Errorf("%w: side %q", errBadRequest, req.Side), nil)
		return
	}
	s.run(w, r, func(sess *session.Session) (session.Snapshot, error) {
		return sess.SetRotation(req.Side, req.Mirrored)
	})
}

type saveResponse struct {
	Report   persistence.SaveReport `json:"report"`
	Snapshot session.Snapshot       `json:"snapshot"`
}

func (s *TaggingServer) save(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	report, snap, err := sess.Save(ctx)
	if err != nil {
		s.fail(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Report: report, Snapshot: snap})
}

// action adapts a body-less session method into a handler.
func (s *TaggingServer) action(fn func(*session.Session) (session.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, fn)
	}
}

func (s *TaggingServer) run(w http.ResponseWriter, r *http.Request, fn func(*session.Session) (session.Snapshot, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := fn(sess)
	if err != nil {
		s.fail(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *TaggingServer) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("setID"))
	if err != nil {
		s.fail(w, r, err, nil)
		return nil, false
	}
	return sess, true
}

func (s *TaggingServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return false
	}
	return true
}

type errorResponse struct {
	Error    string            `json:"error"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

// fail writes err with the status it maps to. Rejected session actions still
// carry the snapshot, whose directives the client must apply.
func (s *TaggingServer) fail(w http.ResponseWriter, r *http.Request, err error, snap *session.Snapshot) {
	status := statusFor(err)
	log := s.log(r)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Snapshot: snap})
}

// log prefers the request-scoped logger set by the request id middleware.
func (s *TaggingServer) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrNoServer),
		errors.Is(err, service.ErrUnknownScope),
		errors.Is(err, annotate.ErrMissingAnswer):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrWrongPhase),
		errors.Is(err, session.ErrOpenRally),
		errors.Is(err, session.ErrSessionExists),
		errors.Is(err, service.ErrAlreadyStarted),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, capture.ErrNotAllowed),
		errors.Is(err, capture.ErrNotLive),
		errors.Is(err, annotate.ErrComplete),
		errors.Is(err, annotate.ErrAtStart),
		errors.Is(err, annotate.ErrAtFrontier):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

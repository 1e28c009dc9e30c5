// Package handlers HTTP API игры.
package handlers

import (
	"context"
	"net/http"
	"time"

	"foxgem/common"
	"foxgem/leaderboard"
	"foxgem/referralLink"
	"foxgem/scores"
	"foxgem/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const healthTimeout = 2 * time.Second

// Server HTTP API
type Server struct {
	store     storage.Store
	scores    *scores.Service
	referrals *referralLink.ReferralService
	board     *leaderboard.Aggregator
	started   time.Time
	log       *logrus.Entry
}

// NewServer создает HTTP API поверх сервисов
func NewServer(store storage.Store, scoreService *scores.Service, referrals *referralLink.ReferralService, board *leaderboard.Aggregator) *Server {
	return &Server{
		store:     store,
		scores:    scoreService,
		referrals: referrals,
		board:     board,
		started:   time.Now(),
		log:       common.Component("HTTP_SERVER"),
	}
}

// Handler возвращает роутер со всеми маршрутами
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)
	r.Use(observe(s.log))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("FoxGem Backend is LIVE!"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/save", s.handleSave)
		r.Post("/save-score", s.handleSave)
		r.Post("/save-user", s.handleSaveUser)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/user", s.handleUserStats)
		r.Get("/user/{id}", s.handleUserStats)
		r.Get("/referral/{userId}", s.handleReferralInfo)
		r.Post("/referral", s.handleAttributeReferral)
		r.Get("/health", s.handleHealth)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// saveRequest тело /api/save и /api/save-user
type saveRequest struct {
	UserID       flexInt `json:"userId"`
	TelegramID   flexInt `json:"telegramId"`
	DisplayName  string  `json:"displayName"`
	Username     string  `json:"username"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Score        flexInt `json:"score"`
	ReferrerCode string  `json:"referrerCode"`
}

// userID возвращает userId или telegramId, если userId не передан
func (req *saveRequest) userID() int64 {
	if req.UserID.Set {
		return req.UserID.Value
	}
	return req.TelegramID.Value
}

func (req *saveRequest) displayName() string {
	if req.DisplayName != "" {
		return req.DisplayName
	}
	return req.Username
}

type saveResponse struct {
	Success bool `json:"success"`
	*scores.SubmitResult
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	submit := scores.SubmitRequest{
		UserID:       req.userID(),
		DisplayName:  req.displayName(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ReferrerCode: req.ReferrerCode,
	}
	if req.Score.Set {
		score := req.Score.Value
		submit.Score = &score
	}

	result, err := s.scores.Submit(r.Context(), submit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, SubmitResult: result})
}

type saveUserResponse struct {
	Success bool                `json:"success"`
	User    *common.UserProfile `json:"user"`
}

func (s *Server) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := s.scores.SaveUser(r.Context(), common.ProfileUpdate{
		TelegramID:  req.userID(),
		DisplayName: req.displayName(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveUserResponse{Success: true, User: profile})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.board.Top(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	id, err := parseID(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := s.scores.GetUserStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type referralInfoResponse struct {
	Success bool `json:"success"`
	*common.ReferralLinkInfo
}

func (s *Server) handleReferralInfo(w http.ResponseWriter, r *http.Request) {
	if !s.referrals.Enabled() {
		writeError(w, common.ValidationError("реферальная система отключена"))
		return
	}

	id, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := s.referrals.GetReferralLinkInfo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, referralInfoResponse{Success: true, ReferralLinkInfo: info})
}

type attributeRequest struct {
	ReferrerCode string  `json:"referrerCode"`
	NewUserID    flexInt `json:"newUserId"`
}

type attributeResponse struct {
	Success bool                   `json:"success"`
	Credit  *common.ReferralCredit `json:"credit"`
}

func (s *Server) handleAttributeReferral(w http.ResponseWriter, r *http.Request) {
	var req attributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	credit, err := s.referrals.AttributeReferral(r.Context(), req.ReferrerCode, req.NewUserID.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attributeResponse{Success: true, Credit: credit})
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status: "ok",
		Store:  "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		s.log.Errorf("Хранилище недоступно: %v", err)
		resp.Status = "degraded"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

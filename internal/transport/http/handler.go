package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
)

// Handler exposes the session engine over REST.
type Handler struct {
	service *app.SessionService
	ws      *WSHandler
}

func NewHandler(service *app.SessionService) *Handler {
	return &Handler{service: service, ws: NewWSHandler(service)}
}

// Router assembles the chi routes. Everything under /api/tests requires a
// Bearer token; /healthz does not.
func (h *Handler) Router(authSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api/tests", func(r chi.Router) {
		r.Use(Auth(authSecret))
		r.Post("/", h.startTest)
		r.Get("/{testID}", h.getQuestions)
		r.Post("/{testID}/submit", h.submitTest)
		r.Get("/{testID}/answers", h.getAnswers)
		r.Get("/{testID}/ws", h.ws.Watch)
	})
	return r
}

type startTestIn struct {
	Section string   `json:"section"`
	Topics  []string `json:"topics"`
}

func (h *Handler) startTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	var in startTestIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	id, err := h.service.Start(r.Context(), userID, in.Section, in.Topics)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type questionsOut struct {
	Questions   []domain.Question   `json:"questions"`
	EndTime     time.Time           `json:"end_time"`
	StartTime   time.Time           `json:"start_time"`
	ID          int64               `json:"id"`
	Type        string              `json:"type"`
	Section     domain.Section      `json:"section"`
	Passed      int                 `json:"passed"`
	Total       int                 `json:"total"`
	Average     float64             `json:"average"`
	Topics      []string            `json:"topics"`
	CreatedAt   string              `json:"created_at"`
	EarnedScore int                 `json:"earned_score"`
	State       domain.SessionState `json:"state"`
}

func (h *Handler) getQuestions(w http.ResponseWriter, r *http.Request) {
	userID, testID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	view, err := h.service.Questions(r.Context(), userID, testID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	topics := view.Topics
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, questionsOut{
		Questions:   view.Questions,
		EndTime:     view.EndTime,
		StartTime:   view.StartTime,
		ID:          view.ID,
		Type:        "custom",
		Section:     view.Section,
		Passed:      view.Result.Passed,
		Total:       view.Result.Total,
		Average:     view.Result.Accuracy,
		Topics:      topics,
		CreatedAt:   view.CreatedAt.Format(time.RFC3339),
		EarnedScore: view.Result.WeightedScore,
		State:       view.State,
	})
}

type submitIn struct {
	Answers []domain.SubmittedAnswer `json:"answers"`
}

func (h *Handler) submitTest(w http.ResponseWriter, r *http.Request) {
	userID, testID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}
	var in submitIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	result, err := h.service.Submit(r.Context(), userID, testID, in.Answers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type answerDetailOut struct {
	QuestionID    int64    `json:"question_id"`
	QuestionType  string   `json:"question_type"`
	Difficulty    string   `json:"difficulty"`
	UserAnswer    []string `json:"user_answer"`
	CorrectAnswer []string `json:"correct_answer"`
	IsCorrect     bool     `json:"is_correct"`
	PointsAwarded int      `json:"points_awarded"`
	ResponseTime  float64  `json:"response_time"`
}

func (h *Handler) getAnswers(w http.ResponseWriter, r *http.Request) {
	userID, testID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	records, err := h.service.Answers(r.Context(), userID, testID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]answerDetailOut, 0, len(records))
	for _, rec := range records {
		out = append(out, answerDetailOut{
			QuestionID:    rec.QuestionID,
			QuestionType:  string(rec.Type),
			Difficulty:    string(rec.Difficulty),
			UserAnswer:    rec.UserAnswer,
			CorrectAnswer: rec.CorrectAnswer,
			IsCorrect:     rec.Correct,
			PointsAwarded: rec.PointsAwarded,
			ResponseTime:  rec.ResponseTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]answerDetailOut{"answers": out})
}

func (h *Handler) sessionParams(w http.ResponseWriter, r *http.Request) (userID, testID int64, ok bool) {
	userID, found := UserID(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return 0, 0, false
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "test_not_found")
		return 0, 0, false
	}
	return userID, testID, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSection):
		writeError(w, http.StatusBadRequest, "invalid_section")
	case errors.Is(err, domain.ErrNoTopicsFound):
		writeError(w, http.StatusNotFound, "no_topics_found")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "test_not_found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNoAnswers):
		writeError(w, http.StatusBadRequest, "no_answers_provided")
	case errors.Is(err, domain.ErrAnswerTooLong):
		writeError(w, http.StatusBadRequest, "answer_too_long")
	case errors.Is(err, domain.ErrTooManyAnswers):
		writeError(w, http.StatusBadRequest, "too_many_answers")
	case errors.Is(err, domain.ErrAnswerItemTooLong):
		writeError(w, http.StatusBadRequest, "answer_item_too_long")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"code": code})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

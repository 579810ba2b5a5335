package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/document"
	"github.com/spigell/cv-intake/internal/interview"
	"github.com/spigell/cv-intake/internal/llm"
	"github.com/spigell/cv-intake/internal/logger"
)

var errInvalidSession = errors.New("invalid session id")

// sessionID resolves the session of r and echoes it in the response.
func sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	switch {
	case id == "":
		id = interview.DefaultSessionID
	case id == NewSessionValue:
		id = uuid.NewString()
	case len(id) > maxSessionIDLength:
		return "", errInvalidSession
	}

	w.Header().Set(SessionHeader, id)
	return id, nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) extractCV(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.WithFields(s.logger, logger.Session(id))

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		writeErr(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "reading uploaded file failed")
		return
	}

	text, err := s.extract(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, document.ErrUnsupportedInput) {
			log.Info("unsupported upload", zap.String("filename", header.Filename), zap.Error(err))
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error("text extraction failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "text extraction failed")
		return
	}

	state, err := s.pipeline.Run(r.Context(), text)
	if err != nil {
		log.Error("cv pipeline failed", zap.Error(err))
		if state != nil && state.Profile != nil && state.Profile.Error != "" {
			writeErr(w, http.StatusBadGateway, state.Profile.Error)
			return
		}
		writeErr(w, http.StatusBadGateway, "anonymization failed")
		return
	}

	profileID, err := s.interviews.SetProfile(r.Context(), id, state.Profile)
	if err != nil {
		log.Error("storing profile failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "storing profile failed")
		return
	}

	if s.questions != nil {
		s.questions.Enqueue(interview.QuestionJob{SessionID: id, ProfileID: profileID, Profile: state.Profile})
	}

	log.Info("cv extracted", zap.Int("skills", len(state.Profile.Skills)), zap.Int("leaks", len(state.Leaks)))
	writeJSON(w, http.StatusOK, state.Profile)
}

func (s *Server) lastCV(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.interviews.Profile(r.Context(), id)
	if errors.Is(err, interview.ErrNoProfile) {
		writeErr(w, http.StatusNotFound, "no CV has been extracted yet")
		return
	}
	if err != nil {
		s.internalError(w, id, "loading profile failed", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	turns, err := s.interviews.History(r.Context(), id)
	if err != nil {
		s.internalError(w, id, "loading history failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": turns})
}

type questionRequest struct {
	Answer *string `json:"answer"`
}

func (s *Server) question(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.WithFields(s.logger, logger.Session(id))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAnswerBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	var req questionRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeErr(w, http.StatusBadRequest, "body must be a JSON object with an optional answer")
			return
		}
	}

	question, err := s.interviews.NextQuestion(r.Context(), id, req.Answer)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"question": question})
	case errors.Is(err, interview.ErrNoProfile):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, llm.ErrAllModelsExhausted), errors.Is(err, interview.ErrEmptyQuestion):
		log.Error("next question failed", zap.Error(err))
		writeErr(w, http.StatusBadGateway, "failed to generate the next question")
	case r.Context().Err() != nil:
		log.Info("client went away while waiting for a question", zap.Error(err))
		writeErr(w, http.StatusBadGateway, "request cancelled")
	default:
		s.internalError(w, id, "next question failed", err)
	}
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.interviews.Reset(r.Context(), id); err != nil {
		s.internalError(w, id, "clearing history failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) suggestedQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	questions, err := s.interviews.Suggested(r.Context(), id)
	if err != nil {
		s.internalError(w, id, "loading suggested questions failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"questions": questions})
}

func (s *Server) internalError(w http.ResponseWriter, id, msg string, err error) {
	s.logger.Error(msg, logger.Session(id), zap.Error(err))
	writeErr(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

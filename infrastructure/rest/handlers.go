package rest

import (
	"net/http"
	"time"

	"nexchat/auth"
	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/errors"
	"nexchat/services"
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, status, errors.PublicMessage(err))
}

func (s *Server) startSession(w http.ResponseWriter, status int, session services.Session) {
	http.SetCookie(w, auth.SessionCookie(session.Token, int(s.options.TokenDuration/time.Second), s.options.SecureCookies))
	writeJSON(w, status, session)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.accounts.Register(clientIP(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("User registered", "user_id", session.Identity.UserID, "username", session.Identity.Username)
	s.startSession(w, http.StatusCreated, session)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.accounts.Login(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(w, http.StatusOK, session)
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, auth.SessionCookie("", -1, s.options.SecureCookies))
	writeMessage(w, http.StatusOK, "logged out successfully")
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	writeJSON(w, http.StatusOK, identity)
}

func (s *Server) people(w http.ResponseWriter, r *http.Request) {
	people, err := s.accounts.People()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, people)
}

func (s *Server) online(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.OnlineUsers())
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	messages, err := s.chat.GetMessages(chat.GetMessagesCommand{UserID: identity.UserID, PeerID: r.PathValue("userId")})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) updateMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	var cmd chat.UpdateMessageCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.MessageID = r.PathValue("id")
	s.respondMutation(w, r, func() (domain.Message, error) { return s.chat.UpdateMessage(identity, cmd) })
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	cmd := chat.DeleteMessageCommand{MessageID: r.PathValue("id")}
	s.respondMutation(w, r, func() (domain.Message, error) { return s.chat.DeleteMessage(identity, cmd) })
}

// respondMutation returns the stored record after an edit or delete; live
// connections of both parties are notified by the chat service itself.
func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, mutate func() (domain.Message, error)) {
	message, err := mutate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Process     any    `json:"process,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	response := healthResponse{
		Status:      "ok",
		Timestamp:   s.clock().UTC().Format(time.RFC3339),
		Environment: s.options.Environment,
	}
	if s.stats != nil {
		response.Process = s.stats.GetLatest()
	}
	writeJSON(w, http.StatusOK, response)
}

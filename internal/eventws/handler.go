package eventws

import (
	"log"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"herald/announcer/internal/auth"
	"herald/announcer/internal/config"
	"herald/announcer/internal/store"
)

type Server struct {
	Cfg   config.Config
	Store *store.Store
	Reg   *Registry
}

func NewServer(cfg config.Config, st *store.Store, reg *Registry) *Server {
	return &Server{Cfg: cfg, Store: st, Reg: reg}
}

// HandleObserverWS upgrades an observer connection. Optional
// announcement_id narrows the stream to one session; without it the
// observer sees every announcement.
func (s *Server) HandleObserverWS(w http.ResponseWriter, r *http.Request) {
	announcementID := r.URL.Query().Get("announcement_id")
	if announcementID != "" && s.Store.Get(announcementID) == nil {
		http.Error(w, "unknown announcement", http.StatusNotFound)
		return
	}
	if s.Cfg.API.TokenSecret != "" {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(authz, "Bearer ")
		if _, err := auth.ValidateToken(s.Cfg.API.TokenSecret, token, time.Now(), s.Cfg.API.TokenSkewSecs); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[eventws] accept: %v", err)
		return
	}
	s.Reg.Add(announcementID, c)
	defer s.Reg.Remove(announcementID, c)
	log.Printf("[eventws] observer connected (announcement=%q)", announcementID)

	// Observers only listen; the read loop just detects disconnects.
	ctx := r.Context()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			break
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "bye")
}

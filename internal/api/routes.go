package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/util"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Version is reported by /api/ping; set from main.
var Version = "dev"

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
	})
}

// statusResponse describes the running session.
type statusResponse struct {
	State            string              `json:"state"`
	AuthState        string              `json:"auth_state"`
	AuthStatus       protocol.AuthStatus `json:"auth_status"`
	SessionID        string              `json:"session_id,omitempty"`
	Remote           string              `json:"remote,omitempty"`
	Username         string              `json:"username,omitempty"`
	PlayerID         uint8               `json:"player_id"`
	Players          int                 `json:"players"`
	LastPing         *time.Time          `json:"last_ping,omitempty"`
	DisconnectReason string              `json:"disconnect_reason,omitempty"`
	Host             util.HostInfo       `json:"host"`
	Process          *util.ProcessStats  `json:"process,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		State:     client.StateIdle.String(),
		AuthState: client.AuthUnauthenticated.String(),
		Host:      util.GetHostInfo(),
	}
	if stats, err := util.GetProcessStats(); err == nil {
		resp.Process = stats
	}

	if cl := s.sessions.Current(); cl != nil {
		resp.State = cl.State().String()
		resp.AuthState = cl.AuthState().String()
		resp.AuthStatus = cl.AuthStatus()
		resp.SessionID = cl.SessionID()
		resp.Remote = cl.RemoteAddr()
		resp.Username = cl.Username()
		resp.PlayerID = cl.PlayerID()
		resp.Players = len(cl.Players())
		resp.DisconnectReason = cl.DisconnectReason()
		if lp := cl.LastPing(); !lp.IsZero() {
			resp.LastPing = &lp
		}
	}

	c.JSON(http.StatusOK, resp)
}

// connected returns the live client or writes a 503.
func (s *Server) connected(c *gin.Context) *client.Client {
	cl := s.sessions.Current()
	if cl == nil || !cl.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not connected to a server"})
		return nil
	}
	return cl
}

func (s *Server) handlePlayers(c *gin.Context) {
	cl := s.connected(c)
	if cl == nil {
		return
	}

	players := cl.Players()
	if players == nil {
		players = []protocol.Player{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(players),
		"players": players,
	})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	cl := s.connected(c)
	if cl == nil {
		return
	}

	doc, err := cl.RequestServerInfo(c.Request.Context())
	if err != nil {
		writeClientError(c, err)
		return
	}

	info, err := protocol.ParseServerInfo(doc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "raw": doc})
		return
	}
	c.JSON(http.StatusOK, info)
}

type sendChatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleSendChat(c *gin.Context) {
	var req sendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	cl := s.connected(c)
	if cl == nil {
		return
	}

	if err := cl.SendChat(req.Message); err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) handleReconnect(c *gin.Context) {
	s.sessions.Reconnect()
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

func (s *Server) handleChatHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	records, err := s.history.RecentChat(c.Request.Context(), historyLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": records})
}

func (s *Server) handlePlayerHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	records, err := s.history.RecentSightings(c.Request.Context(), c.Query("name"), historyLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sightings": records})
}

func (s *Server) handleSessionHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	records, err := s.history.Sessions(c.Request.Context(), historyLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (s *Server) historyEnabled(c *gin.Context) bool {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return false
	}
	return true
}

func historyLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// writeClientError maps client errors onto HTTP statuses.
func writeClientError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, client.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, client.ErrRequestPending):
		status = http.StatusConflict
	case errors.Is(err, client.ErrNotConnected), errors.Is(err, client.ErrDisconnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrFrameTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, protocol.ErrEmbeddedNull):
		status = http.StatusBadRequest
	}

	var terr *client.TransportError
	if errors.As(err, &terr) {
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

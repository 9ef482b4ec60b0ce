package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

type pairer interface {
	Pair(ctx context.Context, number string) (string, error)
	Connected() (connected, loggedIn bool)
}

type server struct {
	bot        pairer
	premium    premium.Store
	adminToken string
	started    time.Time
}

func newRouter(bot pairer, store premium.Store, adminToken string) *gin.Engine {
	s := &server{bot: bot, premium: store, adminToken: adminToken, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.StaticFile("/", "./web/index.html")
	r.GET("/api/health", s.health)

	// pairing wipes the current session, so it needs the token too
	r.POST("/api/pair", s.requireToken, s.pair)

	api := r.Group("/api/premium", s.requireToken)
	api.GET("", s.listPremium)
	api.POST("", s.addPremium)
	api.DELETE("/:number", s.removePremium)
	return r
}

func (s *server) requireToken(c *gin.Context) {
	if s.adminToken == "" {
		return
	}
	got := c.GetHeader("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func (s *server) health(c *gin.Context) {
	connected, loggedIn := s.bot.Connected()
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"connected": connected,
		"logged_in": loggedIn,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *server) pair(c *gin.Context) {
	var req struct {
		Number string `json:"number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	num := premium.NormalizeNumber(req.Number)
	if num == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid number"})
		return
	}
	code, err := s.bot.Pair(c.Request.Context(), num)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

func (s *server) listPremium(c *gin.Context) {
	entries, err := s.premium.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []premium.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"users": entries})
}

func (s *server) addPremium(c *gin.Context) {
	var req struct {
		Number  string `json:"number" binding:"required"`
		Days    int    `json:"days"`
		AddedBy string `json:"added_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must not be negative"})
		return
	}
	e := premium.Entry{Number: premium.NormalizeNumber(req.Number), AddedBy: req.AddedBy, AddedAt: time.Now()}
	if e.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid number"})
		return
	}
	if req.AddedBy == "" {
		e.AddedBy = "api"
	}
	if req.Days > 0 {
		e.ExpiresAt = e.AddedAt.Add(time.Duration(req.Days) * 24 * time.Hour)
	}
	if err := s.premium.Add(c.Request.Context(), e); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *server) removePremium(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	err := s.premium.Remove(c.Request.Context(), number)
	switch {
	case errors.Is(err, premium.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

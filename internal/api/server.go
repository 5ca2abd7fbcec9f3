// Package api exposes the scheduler's control surface over HTTP for
// diagnostics and for the display side of the vacation application.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/scheduler"
)

// Server wraps the HTTP control surface around a scheduler.
type Server struct {
	sched *scheduler.Scheduler
	srv   *http.Server
}

func NewServer(sched *scheduler.Scheduler, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	s := &Server{sched: sched}
	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/flights", s.handleTrackedFlights)
	api.GET("/flights/:iata/:date", s.handleCachedStatus)
	api.GET("/usage", s.handleUsage)
	api.POST("/update", s.handleManualUpdate)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown failed: %w", err)
	}
	return <-errCh
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTrackedFlights(c *gin.Context) {
	tracked := s.sched.TrackedFlights(c.Request.Context())
	out := make([]gin.H, 0, len(tracked))
	for _, f := range tracked {
		out = append(out, gin.H{
			"vacation_id": f.VacationID,
			"flight_iata": f.FlightIata,
			"date":        f.Date,
			"airline":     f.Airline,
			"tier":        f.Tier.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"flights": out, "count": len(out)})
}

func (s *Server) handleCachedStatus(c *gin.Context) {
	iata := c.Param("iata")
	date := c.Param("date")
	entry, ok := s.sched.CachedStatus(c.Request.Context(), iata, date)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no cached status for %s on %s", iata, date)})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleUsage(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.UsageStats(c.Request.Context()))
}

func (s *Server) handleManualUpdate(c *gin.Context) {
	updated := s.sched.TriggerManualUpdate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

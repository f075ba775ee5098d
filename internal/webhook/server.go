// Package webhook receives GitHub events and turns pushes into bounty jobs.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/worker"
)

const (
	eventHeader     = "X-GitHub-Event"
	signatureHeader = "X-Hub-Signature-256"
	deliveryHeader  = "X-GitHub-Delivery"

	// maxBody bounds webhook payloads; GitHub caps them at 25MB
	maxBody = 25 << 20
)

// Version is reported by the root endpoint
var Version = "0.1.0"

// Config configures the webhook server
type Config struct {
	Addr   string // default :8080
	Secret string
	Queue  worker.Enqueuer
	Logger logrus.FieldLogger
}

// Server is the HTTP front door of the service
type Server struct {
	secret []byte
	queue  worker.Enqueuer
	log    logrus.FieldLogger
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the router
func NewServer(cfg Config) (*Server, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		secret: []byte(cfg.Secret),
		queue:  cfg.Queue,
		log:    log.WithField("component", "webhook"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.POST("/webhooks/github", s.handleGitHub)
	s.engine = engine

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("webhook server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Mohtion - Autonomous Tech Debt Bounty Hunter", "version": Version})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "mohtion"})
}

func (s *Server) handleGitHub(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "payload too large"})
		return
	}

	if !s.validSignature(body, c.GetHeader(signatureHeader)) {
		s.log.WithField("delivery", c.GetHeader(deliveryHeader)).Warn("invalid webhook signature")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid signature"})
		return
	}

	event := c.GetHeader(eventHeader)
	switch event {
	case "ping":
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
	case "installation":
		s.handleInstallation(c, body)
	case "push":
		s.handlePush(c, body)
	default:
		s.log.WithField("event", event).Debug("ignoring event")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": event})
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	return c.GetRawData()
}

// validSignature checks the sha256=<hex> HMAC of body
func (s *Server) validSignature(body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(s.secret, body))
}

// Sign computes the raw HMAC-SHA256 GitHub sends as X-Hub-Signature-256
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

type installationEvent struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
	} `json:"installation"`
}

func (s *Server) handleInstallation(c *gin.Context, body []byte) {
	var ev installationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed payload"})
		return
	}
	s.log.WithFields(logrus.Fields{
		"action":          ev.Action,
		"account":         ev.Installation.Account.Login,
		"installation_id": ev.Installation.ID,
	}).Info("installation event")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "action": ev.Action})
}

type pushEvent struct {
	Ref        string `json:"ref"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		Name          string `json:"name"`
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
			Name  string `json:"name"`
		} `json:"owner"`
	} `json:"repository"`
}

// ownerRepo prefers full_name and falls back to the owner object
func (ev pushEvent) ownerRepo() (string, string) {
	if owner, repo, ok := strings.Cut(ev.Repository.FullName, "/"); ok && owner != "" && repo != "" {
		return owner, repo
	}
	owner := ev.Repository.Owner.Login
	if owner == "" {
		owner = ev.Repository.Owner.Name
	}
	return owner, ev.Repository.Name
}

func (s *Server) handlePush(c *gin.Context, body []byte) {
	var ev pushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed payload"})
		return
	}
	owner, repo := ev.ownerRepo()
	if owner == "" || repo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "push without repository"})
		return
	}

	branch := ev.Repository.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	log := s.log.WithFields(logrus.Fields{"repo": owner + "/" + repo, "ref": ev.Ref})
	if ev.Ref != "refs/heads/"+branch {
		log.Debug("ignoring push to non-default branch")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not default branch"})
		return
	}
	if ev.Deleted {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "branch deleted"})
		return
	}

	queued, err := s.queue.Enqueue(worker.Job{Owner: owner, Repo: repo, Branch: branch, Trigger: "push"})
	switch {
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		log.WithError(err).Warn("could not queue scan")
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
	case err != nil:
		log.WithError(err).Error("could not queue scan")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to queue scan"})
	case !queued:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "scan already queued"})
	default:
		log.Info("queued scan")
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "repo": owner + "/" + repo})
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/models"
	"github.com/yourusername/tradeguard/internal/promotion"
)

// Config defines the artifact feed poller
type Config struct {
	URL          string
	PollInterval time.Duration
	DownloadDir  string
}

// Poller watches the training pipeline's artifact feed. Each new artifact
// is downloaded, checksum-verified and proposed to the promotion
// controller; a busy or gated controller just means the artifact comes
// around again on a later poll.
type Poller struct {
	cfg        Config
	client     *RateLimitedHTTPClient
	controller *promotion.Controller
	logger     *logrus.Logger
	seen       map[string]struct{}
}

// NewPoller creates an artifact feed poller
func NewPoller(cfg Config, client *RateLimitedHTTPClient, controller *promotion.Controller, logger *logrus.Logger) *Poller {
	return &Poller{
		cfg:        cfg,
		client:     client,
		controller: controller,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Run polls the feed until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.WithFields(logrus.Fields{
		"url":      p.cfg.URL,
		"interval": p.cfg.PollInterval.String(),
	}).Info("Artifact feed poller started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Artifact feed poller stopped")
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.logger.WithError(err).Warn("Artifact feed poll failed")
			}
		}
	}
}

// Poll fetches the feed once and proposes any new artifacts
func (p *Poller) Poll(ctx context.Context) error {
	resp, err := p.client.Get(ctx, p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch artifact feed: %w", err)
	}
	defer resp.Body.Close()

	var artifacts []models.CandidateArtifact
	if err := json.NewDecoder(resp.Body).Decode(&artifacts); err != nil {
		return fmt.Errorf("failed to decode artifact feed: %w", err)
	}

	for i := range artifacts {
		artifact := &artifacts[i]
		if _, ok := p.seen[artifact.ID]; ok {
			continue
		}
		p.handleArtifact(ctx, artifact)
	}
	return nil
}

func (p *Poller) handleArtifact(ctx context.Context, artifact *models.CandidateArtifact) {
	if !validArtifactID(artifact.ID) {
		// The id becomes a filename under the download directory, so an id
		// carrying path elements must never reach the filesystem.
		p.logger.WithField("artifact_id", artifact.ID).Warn("Skipping artifact with unsafe id")
		p.seen[artifact.ID] = struct{}{}
		return
	}

	cohort, err := cohortFromMetadata(artifact)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"artifact_id": artifact.ID,
			"reason":      err.Error(),
		}).Warn("Skipping artifact with unusable metadata")
		p.seen[artifact.ID] = struct{}{}
		return
	}

	localPath, err := p.download(ctx, artifact)
	if err != nil {
		p.logger.WithError(err).WithField("artifact_id", artifact.ID).Warn("Artifact download failed")
		return
	}

	_, err = p.controller.PromoteArtifact(ctx, artifact, localPath, cohort)
	switch {
	case err == nil:
		p.seen[artifact.ID] = struct{}{}
		p.logger.WithFields(logrus.Fields{
			"artifact_id": artifact.ID,
			"model_type":  artifact.ModelType,
			"cohort":      cohort.String(),
		}).Info("Candidate artifact promoted to canary")
	case errors.Is(err, models.ErrSessionActive), errors.Is(err, models.ErrPromotionDisabled):
		// Retry on a later poll once the controller is free.
		p.logger.WithFields(logrus.Fields{
			"artifact_id": artifact.ID,
			"reason":      err.Error(),
		}).Info("Artifact promotion deferred")
	default:
		// Checksum mismatches and install failures are terminal for
		// this artifact.
		p.seen[artifact.ID] = struct{}{}
		p.logger.WithError(err).WithField("artifact_id", artifact.ID).Error("Artifact promotion rejected")
	}
}

func (p *Poller) download(ctx context.Context, artifact *models.CandidateArtifact) (string, error) {
	resp, err := p.client.Get(ctx, artifact.URL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch artifact %s: %w", artifact.ID, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(p.cfg.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	path := filepath.Join(p.cfg.DownloadDir, artifact.ID)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write artifact file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact file: %w", err)
	}
	return path, nil
}

// validArtifactID reports whether a feed-supplied id is safe to use as a
// plain filename.
func validArtifactID(id string) bool {
	return id != "" && id != "." && id != ".." && id == filepath.Base(id)
}

func cohortFromMetadata(artifact *models.CandidateArtifact) (models.CohortKey, error) {
	key := models.CohortKey{
		StrategyID: artifact.Metadata["strategy_id"],
		Regime:     artifact.Metadata["regime"],
		Session:    artifact.Metadata["session"],
	}
	if key.StrategyID == "" || key.Regime == "" || key.Session == "" {
		return models.CohortKey{}, fmt.Errorf("artifact metadata missing cohort fields")
	}
	return key, nil
}

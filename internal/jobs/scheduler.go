package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/repository"
)

// Scheduler runs periodic maintenance. Task records expire on their own in
// redis; only the postgres archive needs active pruning.
type Scheduler struct {
	cron    *cron.Cron
	archive *repository.ArchiveRepository
	cfg     config.ArchiveConfig
	log     zerolog.Logger
}

func NewScheduler(archive *repository.ArchiveRepository, cfg config.ArchiveConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		archive: archive,
		cfg:     cfg,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if s.archive == nil {
		return nil
	}

	// Daily at midnight.
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.pruneArchive); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for any running job to finish, bounded at five seconds.
func (s *Scheduler) Stop() {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) pruneArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.archive.Prune(ctx, s.cfg.Retention)
	if err != nil {
		s.log.Error().Err(err).Msg("archive prune failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("archive pruned")
	}
}

package framemarble

import (
	"context"
)

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts the frame service and its sweep schedule.
func (s *Service) Start(ctx context.Context) error {
	if err := s.BaseService.Start(ctx); err != nil {
		return err
	}
	s.Logger().WithField("recipient", s.recipient.Hex()).
		WithField("base_url", s.manifest.BaseURL()).
		Info("Frame service ready")
	return nil
}

// Stop closes every live session, then stops background work.
func (s *Service) Stop() error {
	s.sessions.CloseAll()
	return s.BaseService.Stop()
}

package application

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const maxForwardDelayFactor = 5

var _ domain.EventHandler = (*service)(nil)

func (s *service) HandleEvent(ctx context.Context, event domain.Event) error {
	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("handling event %s", spew.Sdump(event))
	}

	err := event.Dispatch(ctx, s)
	if err == nil {
		return nil
	}
	if domain.IsDurabilityFailure(err) || domain.IsInvariantViolation(err) {
		log.WithError(err).Errorf("unrecoverable failure handling %T", event)
		s.fatal(err)
		return err
	}
	log.WithError(err).Warnf("failed to handle %T", event)
	return err
}

// eventLoop handles the engine events one at a time in delivery order.
func (s *service) eventLoop() {
	defer close(s.loopDone)

	events := s.engine.Events()
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-events:
			if !ok {
				log.Warn("engine event feed closed")
				return
			}
			if s.stopping.Load() {
				return
			}
			//nolint:errcheck
			s.HandleEvent(s.ctx, event)
		}
	}
}

// goDetached runs task in background. The task context is canceled on
// shutdown.
func (s *service) goDetached(task func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task(s.ctx)
	}()
}

// sleep returns false if the service stopped in the meantime.
func (s *service) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *service) OnPendingHTLCsForwardable(
	_ context.Context, e domain.PendingHTLCsForwardable,
) error {
	delay := e.TimeForwardable
	if delay > 0 {
		delay += rand.N((maxForwardDelayFactor - 1) * e.TimeForwardable)
	}

	s.goDetached(func(ctx context.Context) {
		if !s.sleep(ctx, delay) {
			return
		}
		if err := s.engine.ProcessPendingHTLCForwards(ctx); err != nil {
			log.WithError(err).Warn("failed to process pending htlc forwards")
		}
	})
	return nil
}

func (s *service) OnBumpTransaction(ctx context.Context, e domain.BumpTransaction) error {
	if s.bumper == nil {
		log.Warnf("no fee bumper configured, ignoring bump request for channel %s", e.ChannelID)
		return nil
	}
	if err := s.bumper.HandleBumpTransaction(ctx, e); err != nil {
		log.WithError(err).Errorf("failed to bump transaction of channel %s", e.ChannelID)
	}
	return nil
}

func (s *service) OnPaymentPathSuccessful(_ context.Context, e domain.PaymentPathSuccessful) error {
	log.Debugf("payment path successful for payment %s", e.PaymentID)
	return nil
}

func (s *service) OnPaymentPathFailed(_ context.Context, e domain.PaymentPathFailed) error {
	log.Debugf("payment path failed for payment hash %s", e.PaymentHash)
	return nil
}

func (s *service) OnProbeSuccessful(_ context.Context, e domain.ProbeSuccessful) error {
	log.Debugf("probe %s successful", e.PaymentID)
	return nil
}

func (s *service) OnProbeFailed(_ context.Context, e domain.ProbeFailed) error {
	log.Debugf("probe %s failed", e.PaymentID)
	return nil
}

func (s *service) OnHTLCHandlingFailed(_ context.Context, e domain.HTLCHandlingFailed) error {
	log.Debugf("htlc handling failed on channel %s", e.PrevChannelID)
	return nil
}

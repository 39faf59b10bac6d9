package nodeservice

import (
	"context"
	"fmt"
	"time"

	"github.com/rgb-ln/rlnd/internal/config"
	"github.com/rgb-ln/rlnd/internal/core/application"
	interfaces "github.com/rgb-ln/rlnd/internal/interface"
	log "github.com/sirupsen/logrus"
)

const unlockTimeout = 30 * time.Second

type service struct {
	appConfig *config.Config
	appSvc    application.Service
}

func NewService(appConfig *config.Config) (interfaces.Service, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}
	return &service{appConfig: appConfig}, nil
}

func (s *service) Start() error {
	if s.appConfig.UnlockerService() == nil {
		log.Warn("no unlocker configured, starting without the node seed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	appSvc, err := s.appConfig.AppService(ctx)
	if err != nil {
		return fmt.Errorf("failed to init app service: %s", err)
	}
	if err := appSvc.Start(); err != nil {
		return fmt.Errorf("failed to start app service: %s", err)
	}
	s.appSvc = appSvc
	log.Info("started app service")

	info, err := appSvc.GetInfo(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to get node info")
		return nil
	}
	log.Infof(
		"node %s running on %s, listening for peers on port %d",
		info.NodeID, info.Network, info.PeerPort,
	)
	return nil
}

func (s *service) Stop() {
	if s.appSvc == nil {
		return
	}
	if err := s.appSvc.Stop(); err != nil {
		log.WithError(err).Warn("app service stopped with error")
	}
	s.appSvc = nil
	log.Info("stopped app service")
}

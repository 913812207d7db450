package service

import (
	"context"

	"github.com/openclaw/rendezvous-server-go/internal/model"
	"github.com/openclaw/rendezvous-server-go/internal/repository"
	"github.com/openclaw/rendezvous-server-go/internal/sse"
)

type Stats struct {
	PendingPairings  int `json:"pendingPairings"`
	Devices          int `json:"devices"`
	LiveChallenges   int `json:"liveChallenges"`
	ConnectedStreams int `json:"connectedStreams"`
}

type StatsService struct {
	ticketRepo    repository.PairingTicketRepository
	deviceRepo    repository.DeviceRepository
	challengeRepo repository.ChallengeRepository
	auditRepo     repository.AuditEventRepository
	broker        *sse.Broker
}

// NewStatsService builds the admin read model. auditRepo may be nil when no
// database is configured.
func NewStatsService(
	ticketRepo repository.PairingTicketRepository,
	deviceRepo repository.DeviceRepository,
	challengeRepo repository.ChallengeRepository,
	auditRepo repository.AuditEventRepository,
	broker *sse.Broker,
) *StatsService {
	return &StatsService{
		ticketRepo:    ticketRepo,
		deviceRepo:    deviceRepo,
		challengeRepo: challengeRepo,
		auditRepo:     auditRepo,
		broker:        broker,
	}
}

func (s *StatsService) Snapshot() Stats {
	stats := Stats{
		PendingPairings: s.ticketRepo.Count(),
		Devices:         s.deviceRepo.Count(),
		LiveChallenges:  s.challengeRepo.Count(),
	}
	if s.broker != nil {
		stats.ConnectedStreams = s.broker.TotalClients()
	}
	return stats
}

func (s *StatsService) AuditEnabled() bool {
	return s.auditRepo != nil
}

func (s *StatsService) RecentAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if s.auditRepo == nil {
		return nil, nil
	}
	return s.auditRepo.FindRecent(ctx, limit)
}

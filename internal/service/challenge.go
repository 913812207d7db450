package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/audit"
	"github.com/openclaw/rendezvous-server-go/internal/config"
	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/model"
	"github.com/openclaw/rendezvous-server-go/internal/repository"
	"github.com/openclaw/rendezvous-server-go/internal/sse"
	"github.com/openclaw/rendezvous-server-go/internal/util"
)

const ChallengeEventType = "challenge"

// ChallengeEvent is pushed to open smartphone streams when a challenge lands.
type ChallengeEvent struct {
	ChallengeID    string `json:"challenge_id"`
	ComparisonCode string `json:"comparison_code"`
	PCName         string `json:"pc_name"`
}

type ChallengeService struct {
	deviceRepo    repository.DeviceRepository
	challengeRepo repository.ChallengeRepository
	broker        *sse.Broker
	audit         *audit.Logger
	maxWait       time.Duration
	pollInterval  time.Duration
	newCode       util.CodeFunc
}

func NewChallengeService(
	deviceRepo repository.DeviceRepository,
	challengeRepo repository.ChallengeRepository,
	broker *sse.Broker,
	auditLogger *audit.Logger,
	maxWait time.Duration,
	pollInterval time.Duration,
) *ChallengeService {
	return &ChallengeService{
		deviceRepo:    deviceRepo,
		challengeRepo: challengeRepo,
		broker:        broker,
		audit:         auditLogger,
		maxWait:       maxWait,
		pollInterval:  pollInterval,
		newCode:       util.GenerateComparisonCode,
	}
}

// Push creates a challenge for the PC's paired smartphone, replacing any
// challenge still live for it, and returns the comparison code to display.
func (s *ChallengeService) Push(ctx context.Context, pcID string) (*model.Challenge, error) {
	pc, smartphone, err := s.pairedDevices(pcID)
	if err != nil {
		return nil, err
	}

	for attempts := 0; attempts < config.MaxCodeDrawAttempts; attempts++ {
		code, err := s.newCode()
		if err != nil {
			log.Error().Err(err).Str("pcId", pc.ID).Msg("failed to draw comparison code")
			return nil, apperrors.Internal("Failed to generate comparison code").WithCause(err)
		}

		created, displaced, err := s.challengeRepo.Push(model.CreateChallengeParams{
			SmartphoneID:   smartphone.ID,
			PCID:           pc.ID,
			ComparisonCode: code,
		})
		if errors.Is(err, repository.ErrCodeInUse) {
			log.Debug().Str("smartphoneId", smartphone.ID).Msg("comparison code collision, redrawing")
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to store challenge").WithCause(err)
		}

		if displaced != nil {
			log.Info().
				Str("challengeId", displaced.ID).
				Str("smartphoneId", smartphone.ID).
				Str("verdict", string(displaced.Verdict)).
				Msg("challenge displaced by a newer push")
			s.audit.Log(ctx, audit.Event{
				Type:         model.AuditChallengeDisplaced,
				PCID:         displaced.PCID,
				SmartphoneID: smartphone.ID,
				ChallengeID:  displaced.ID,
			})
		}

		log.Info().
			Str("challengeId", created.ID).
			Str("pcId", pc.ID).
			Str("smartphoneId", smartphone.ID).
			Msg("challenge pushed")

		s.audit.Log(ctx, audit.Event{
			Type:         model.AuditChallengePushed,
			PCID:         pc.ID,
			SmartphoneID: smartphone.ID,
			ChallengeID:  created.ID,
		})

		s.notify(smartphone.ID, created, pc.DisplayName)

		return created, nil
	}

	log.Error().Str("pcId", pc.ID).Int("attempts", config.MaxCodeDrawAttempts).Msg("comparison code space exhausted")
	return nil, apperrors.Internal("Could not allocate a unique comparison code")
}

// Pull returns the pending challenge for the smartphone without consuming it.
func (s *ChallengeService) Pull(ctx context.Context, smartphoneID string) (*model.Challenge, error) {
	if _, err := s.smartphoneDevice(smartphoneID); err != nil {
		return nil, err
	}

	// A resolved challenge stays readable until the await drains it.
	challenge, _ := s.challengeRepo.Watch(smartphoneID)
	if challenge == nil {
		return nil, apperrors.NoChallengePending()
	}
	return challenge, nil
}

// Verify resolves the smartphone's pending challenge. A wrong code is a
// denial, not an error. A challenge is resolved at most once.
func (s *ChallengeService) Verify(ctx context.Context, smartphoneID, comparisonCode string) (*model.Challenge, error) {
	if smartphoneID == "" || comparisonCode == "" {
		return nil, apperrors.MissingRequired("smartphone-id", "comparison_code")
	}
	if _, err := s.smartphoneDevice(smartphoneID); err != nil {
		return nil, err
	}

	resolved := s.challengeRepo.Resolve(smartphoneID, func(c model.Challenge) model.Verdict {
		if util.ConstantTimeEqual(c.ComparisonCode, comparisonCode) {
			return model.VerdictApproved
		}
		return model.VerdictDenied
	})
	if resolved == nil {
		return nil, apperrors.NoChallengePending()
	}

	eventType := model.AuditChallengeApproved
	if !resolved.Verdict.Approved() {
		eventType = model.AuditChallengeDenied
	}

	log.Info().
		Str("challengeId", resolved.ID).
		Str("smartphoneId", smartphoneID).
		Str("verdict", string(resolved.Verdict)).
		Msg("challenge resolved")

	s.audit.Log(ctx, audit.Event{
		Type:         eventType,
		PCID:         resolved.PCID,
		SmartphoneID: smartphoneID,
		ChallengeID:  resolved.ID,
	})

	return resolved, nil
}

// Await blocks until the challenge for the PC's partner has a verdict, then
// removes it and reports whether it was approved. No lock is held while
// waiting. On timeout or cancellation the challenge stays in place so a
// retried Await can still collect the verdict. A zero timeout means the
// server maximum; larger values are capped to it.
func (s *ChallengeService) Await(ctx context.Context, pcID string, timeout time.Duration) (bool, error) {
	pc, smartphone, err := s.pairedDevices(pcID)
	if err != nil {
		return false, err
	}

	wait := s.maxWait
	if timeout > 0 && timeout < wait {
		wait = timeout
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		current, done := s.challengeRepo.Watch(smartphone.ID)
		if current == nil {
			return false, apperrors.NoChallengePending()
		}

		if !current.Verdict.Resolved() {
			select {
			case <-done:
			case <-ticker.C:
			case <-timer.C:
				log.Info().
					Str("challengeId", current.ID).
					Str("pcId", pc.ID).
					Dur("waited", wait).
					Msg("await timed out")
				s.audit.Log(ctx, audit.Event{
					Type:         model.AuditAwaitTimeout,
					PCID:         pc.ID,
					SmartphoneID: smartphone.ID,
					ChallengeID:  current.ID,
				})
				return false, apperrors.AwaitTimeout()
			case <-ctx.Done():
				log.Debug().
					Str("challengeId", current.ID).
					Str("pcId", pc.ID).
					Msg("await cancelled by caller")
				return false, ctx.Err()
			}
		}

		drained, status := s.challengeRepo.Drain(smartphone.ID)
		switch status {
		case repository.DrainNone:
			return false, apperrors.NoChallengePending()
		case repository.DrainPending:
			// Poll tick, or the watched challenge was displaced by a newer push.
			continue
		}

		log.Info().
			Str("challengeId", drained.ID).
			Str("pcId", pc.ID).
			Str("verdict", string(drained.Verdict)).
			Msg("challenge verdict delivered")

		s.audit.Log(ctx, audit.Event{
			Type:         model.AuditChallengeDrained,
			PCID:         pc.ID,
			SmartphoneID: smartphone.ID,
			ChallengeID:  drained.ID,
			Details:      map[string]any{"verified": drained.Verdict.Approved()},
		})

		return drained.Verdict.Approved(), nil
	}
}

// pairedDevices runs the PC-side validation chain shared by Push and Await.
func (s *ChallengeService) pairedDevices(pcID string) (*model.Device, *model.Device, error) {
	if pcID == "" {
		return nil, nil, apperrors.MissingRequired("pc-id")
	}

	pc := s.deviceRepo.FindByID(pcID)
	if pc == nil {
		return nil, nil, apperrors.DeviceNotFound()
	}
	if !pc.IsPC() {
		return nil, nil, apperrors.WrongDeviceRole("PC")
	}

	partner := s.deviceRepo.FindByID(pc.PartnerID)
	if partner == nil {
		return nil, nil, apperrors.NotPaired()
	}
	if !partner.IsSmartphone() {
		return nil, nil, apperrors.PartnerRoleInvalid()
	}

	return pc, partner, nil
}

// CheckSmartphone reports whether smartphoneID names a paired smartphone.
func (s *ChallengeService) CheckSmartphone(smartphoneID string) error {
	_, err := s.smartphoneDevice(smartphoneID)
	return err
}

// PendingEvent returns the stream event for the smartphone's pending
// challenge, or nil when nothing is waiting.
func (s *ChallengeService) PendingEvent(smartphoneID string) *ChallengeEvent {
	challenge := s.challengeRepo.FindPending(smartphoneID)
	if challenge == nil {
		return nil
	}

	event := ChallengeEvent{
		ChallengeID:    challenge.ID,
		ComparisonCode: challenge.ComparisonCode,
	}
	if pc := s.deviceRepo.FindByID(challenge.PCID); pc != nil {
		event.PCName = pc.DisplayName
	}
	return &event
}

func (s *ChallengeService) smartphoneDevice(smartphoneID string) (*model.Device, error) {
	if smartphoneID == "" {
		return nil, apperrors.MissingRequired("smartphone-id")
	}

	device := s.deviceRepo.FindByID(smartphoneID)
	if device == nil {
		return nil, apperrors.DeviceNotFound()
	}
	if !device.IsSmartphone() {
		return nil, apperrors.WrongDeviceRole("smartphone")
	}
	return device, nil
}

func (s *ChallengeService) notify(smartphoneID string, challenge *model.Challenge, pcName string) {
	if s.broker == nil {
		return
	}

	delivered, err := s.broker.Publish(smartphoneID, ChallengeEventType, ChallengeEvent{
		ChallengeID:    challenge.ID,
		ComparisonCode: challenge.ComparisonCode,
		PCName:         pcName,
	})
	if err != nil {
		log.Warn().Err(err).Str("smartphoneId", smartphoneID).Msg("failed to publish challenge event")
		return
	}
	if delivered > 0 {
		log.Debug().Str("smartphoneId", smartphoneID).Int("streams", delivered).Msg("challenge event published")
	}
}

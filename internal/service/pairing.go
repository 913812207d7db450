package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/openclaw/rendezvous-server-go/internal/audit"
	"github.com/openclaw/rendezvous-server-go/internal/config"
	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/model"
	"github.com/openclaw/rendezvous-server-go/internal/repository"
	"github.com/openclaw/rendezvous-server-go/internal/util"
)

const pairingQRSize = 256

type ClaimResult struct {
	PCID   string
	PCName string
}

type PairingService struct {
	ticketRepo repository.PairingTicketRepository
	deviceRepo repository.DeviceRepository
	audit      *audit.Logger
	newCode    util.CodeFunc
}

func NewPairingService(
	ticketRepo repository.PairingTicketRepository,
	deviceRepo repository.DeviceRepository,
	auditLogger *audit.Logger,
) *PairingService {
	return &PairingService{
		ticketRepo: ticketRepo,
		deviceRepo: deviceRepo,
		audit:      auditLogger,
		newCode:    util.GeneratePairingCode,
	}
}

// IssueCode stores a single-use pairing ticket for the PC and returns it.
func (s *PairingService) IssueCode(ctx context.Context, pcID, pcName string) (*model.PairingTicket, error) {
	if pcID == "" || pcName == "" {
		return nil, apperrors.MissingRequired("pc-id", "pc-name")
	}
	if !util.IsValidIdentifier(pcID) {
		return nil, apperrors.InvalidInput("pc-id", "must be printable and at most 256 bytes")
	}
	if !util.IsValidIdentifier(pcName) {
		return nil, apperrors.InvalidInput("pc-name", "must be printable and at most 256 bytes")
	}

	for attempts := 0; attempts < config.MaxCodeDrawAttempts; attempts++ {
		code, err := s.newCode()
		if err != nil {
			log.Error().Err(err).Str("pcId", pcID).Msg("failed to draw pairing code")
			return nil, apperrors.Internal("Failed to generate pairing code").WithCause(err)
		}

		ticket, err := s.ticketRepo.Create(model.CreatePairingTicketParams{
			Code:   code,
			PCID:   pcID,
			PCName: pcName,
		})
		if errors.Is(err, repository.ErrCodeInUse) {
			log.Debug().Str("code", util.MaskCode(code)).Msg("pairing code collision, redrawing")
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("Failed to store pairing code").WithCause(err)
		}

		log.Info().
			Str("code", util.MaskCode(code)).
			Str("pcId", pcID).
			Msg("pairing code issued")

		s.audit.Log(ctx, audit.Event{Type: model.AuditPairingIssued, PCID: pcID})

		return ticket, nil
	}

	log.Error().Str("pcId", pcID).Int("attempts", config.MaxCodeDrawAttempts).Msg("pairing code space exhausted")
	return nil, apperrors.Internal("Could not allocate a unique pairing code")
}

// Claim consumes the pairing code and binds the smartphone and the PC to
// each other. Concurrent claims of one code yield exactly one success.
func (s *PairingService) Claim(ctx context.Context, smartphoneID, code string) (*ClaimResult, error) {
	if smartphoneID == "" || code == "" {
		return nil, apperrors.MissingRequired("smartphone-id", "pairing_code")
	}
	if !util.IsValidIdentifier(smartphoneID) {
		return nil, apperrors.InvalidInput("smartphone-id", "must be printable and at most 256 bytes")
	}

	// The issuing PC of a ticket never changes, so a self-claim is refused
	// without consuming the code.
	if pending := s.ticketRepo.FindByCode(code); pending != nil && pending.PCID == smartphoneID {
		log.Warn().Str("deviceId", smartphoneID).Msg("pairing claimed by the issuing PC itself")
		s.audit.Log(ctx, audit.Event{
			Type:         model.AuditPairingRejected,
			PCID:         pending.PCID,
			SmartphoneID: smartphoneID,
			Details:      map[string]any{"reason": "self_pairing"},
		})
		return nil, apperrors.InvalidInput("smartphone-id", "must differ from the PC id")
	}

	ticket := s.ticketRepo.Take(code)
	if ticket == nil {
		log.Warn().
			Str("code", util.MaskCode(code)).
			Str("smartphoneId", smartphoneID).
			Msg("unknown pairing code")
		s.audit.Log(ctx, audit.Event{Type: model.AuditPairingRejected, SmartphoneID: smartphoneID})
		return nil, apperrors.UnknownPairingCode()
	}

	s.deviceRepo.Pair(ticket.PCID, ticket.PCName, smartphoneID)

	log.Info().
		Str("code", util.MaskCode(code)).
		Str("pcId", ticket.PCID).
		Str("smartphoneId", smartphoneID).
		Msg("pairing successful")

	s.audit.Log(ctx, audit.Event{
		Type:         model.AuditPairingClaimed,
		PCID:         ticket.PCID,
		SmartphoneID: smartphoneID,
	})

	return &ClaimResult{PCID: ticket.PCID, PCName: ticket.PCName}, nil
}

// QRCode renders a live pairing code as a PNG. Only the issuing PC may fetch it.
func (s *PairingService) QRCode(ctx context.Context, pcID, code string) ([]byte, error) {
	if pcID == "" || code == "" {
		return nil, apperrors.MissingRequired("pc-id", "pairing_code")
	}

	ticket := s.ticketRepo.FindByCode(code)
	if ticket == nil || ticket.PCID != pcID {
		return nil, apperrors.UnknownPairingCode()
	}

	png, err := qrcode.Encode(ticket.Code, qrcode.Medium, pairingQRSize)
	if err != nil {
		log.Error().Err(err).Str("pcId", pcID).Msg("failed to render pairing qr code")
		return nil, apperrors.Internal("Failed to render QR code").WithCause(err)
	}
	return png, nil
}

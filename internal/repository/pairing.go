package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/openclaw/rendezvous-server-go/internal/model"
)

// ErrCodeInUse is returned when a freshly drawn code collides with a live entry.
var ErrCodeInUse = errors.New("code already in use")

type PairingTicketRepository interface {
	FindByCode(code string) *model.PairingTicket
	Create(params model.CreatePairingTicketParams) (*model.PairingTicket, error)
	// Take removes and returns the ticket. Of several concurrent calls for the
	// same code exactly one receives it.
	Take(code string) *model.PairingTicket
	Count() int
}

type pairingTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]model.PairingTicket
}

func NewPairingTicketRepository() PairingTicketRepository {
	return &pairingTicketRepo{
		tickets: make(map[string]model.PairingTicket),
	}
}

func (r *pairingTicketRepo) FindByCode(code string) *model.PairingTicket {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[code]
	if !ok {
		return nil
	}
	return &ticket
}

func (r *pairingTicketRepo) Create(params model.CreatePairingTicketParams) (*model.PairingTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[params.Code]; exists {
		return nil, ErrCodeInUse
	}

	ticket := model.PairingTicket{
		Code:      params.Code,
		PCID:      params.PCID,
		PCName:    params.PCName,
		CreatedAt: time.Now(),
	}
	r.tickets[params.Code] = ticket
	return &ticket, nil
}

func (r *pairingTicketRepo) Take(code string) *model.PairingTicket {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[code]
	if !ok {
		return nil
	}
	delete(r.tickets, code)
	return &ticket
}

func (r *pairingTicketRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

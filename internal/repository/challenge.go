package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/rendezvous-server-go/internal/model"
)

// DrainStatus describes the outcome of a drain attempt.
type DrainStatus int

const (
	// DrainNone means no challenge is live for the smartphone.
	DrainNone DrainStatus = iota
	// DrainPending means the live challenge has no verdict yet.
	DrainPending
	// DrainTaken means the resolved challenge was removed and returned.
	DrainTaken
)

type ChallengeRepository interface {
	// Push stores a fresh unresolved challenge for the smartphone. A live
	// challenge for the same smartphone is replaced and returned as displaced.
	Push(params model.CreateChallengeParams) (created, displaced *model.Challenge, err error)
	// FindPending returns the smartphone's challenge if it has no verdict yet.
	FindPending(smartphoneID string) *model.Challenge
	// Resolve sets the verdict of an unresolved challenge exactly once.
	Resolve(smartphoneID string, decide func(model.Challenge) model.Verdict) *model.Challenge
	// Watch returns the live challenge and a channel closed when that instance
	// is resolved or displaced.
	Watch(smartphoneID string) (*model.Challenge, <-chan struct{})
	// Drain removes the smartphone's challenge if it has been resolved.
	Drain(smartphoneID string) (*model.Challenge, DrainStatus)
	Count() int
}

type challengeEntry struct {
	challenge model.Challenge
	done      chan struct{}
}

type challengeRepo struct {
	mu      sync.Mutex
	entries map[string]*challengeEntry // smartphoneID -> live challenge
	codes   map[string]string          // comparison code -> smartphoneID
}

func NewChallengeRepository() ChallengeRepository {
	return &challengeRepo{
		entries: make(map[string]*challengeEntry),
		codes:   make(map[string]string),
	}
}

func (r *challengeRepo) Push(params model.CreateChallengeParams) (*model.Challenge, *model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, inUse := r.codes[params.ComparisonCode]; inUse {
		return nil, nil, ErrCodeInUse
	}

	var displaced *model.Challenge
	if prev, ok := r.entries[params.SmartphoneID]; ok {
		r.remove(params.SmartphoneID, prev)
		if !prev.challenge.Verdict.Resolved() {
			close(prev.done)
		}
		snapshot := prev.challenge
		displaced = &snapshot
	}

	entry := &challengeEntry{
		challenge: model.Challenge{
			ID:             uuid.NewString(),
			SmartphoneID:   params.SmartphoneID,
			PCID:           params.PCID,
			ComparisonCode: params.ComparisonCode,
			Verdict:        model.VerdictUnresolved,
			CreatedAt:      time.Now(),
		},
		done: make(chan struct{}),
	}
	r.entries[params.SmartphoneID] = entry
	r.codes[params.ComparisonCode] = params.SmartphoneID

	created := entry.challenge
	return &created, displaced, nil
}

func (r *challengeRepo) FindPending(smartphoneID string) *model.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[smartphoneID]
	if !ok || entry.challenge.Verdict.Resolved() {
		return nil
	}
	snapshot := entry.challenge
	return &snapshot
}

func (r *challengeRepo) Resolve(smartphoneID string, decide func(model.Challenge) model.Verdict) *model.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[smartphoneID]
	if !ok || entry.challenge.Verdict.Resolved() {
		return nil
	}

	now := time.Now()
	entry.challenge.Verdict = decide(entry.challenge)
	entry.challenge.ResolvedAt = &now
	close(entry.done)

	snapshot := entry.challenge
	return &snapshot
}

func (r *challengeRepo) Watch(smartphoneID string) (*model.Challenge, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[smartphoneID]
	if !ok {
		return nil, nil
	}
	snapshot := entry.challenge
	return &snapshot, entry.done
}

func (r *challengeRepo) Drain(smartphoneID string) (*model.Challenge, DrainStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[smartphoneID]
	if !ok {
		return nil, DrainNone
	}
	if !entry.challenge.Verdict.Resolved() {
		return nil, DrainPending
	}

	r.remove(smartphoneID, entry)
	snapshot := entry.challenge
	return &snapshot, DrainTaken
}

func (r *challengeRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// remove must be called with mu held.
func (r *challengeRepo) remove(smartphoneID string, entry *challengeEntry) {
	delete(r.entries, smartphoneID)
	delete(r.codes, entry.challenge.ComparisonCode)
}

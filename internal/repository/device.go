package repository

import (
	"sync"
	"time"

	"github.com/openclaw/rendezvous-server-go/internal/model"
)

type DeviceRepository interface {
	FindByID(id string) *model.Device
	// Pair writes both sides of a pairing in one critical section, replacing
	// any earlier record for either device.
	Pair(pcID, pcName, smartphoneID string) (pc, smartphone *model.Device)
	Count() int
}

type deviceRepo struct {
	mu      sync.RWMutex
	devices map[string]model.Device
}

func NewDeviceRepository() DeviceRepository {
	return &deviceRepo{
		devices: make(map[string]model.Device),
	}
}

func (r *deviceRepo) FindByID(id string) *model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil
	}
	return &device
}

func (r *deviceRepo) Pair(pcID, pcName, smartphoneID string) (*model.Device, *model.Device) {
	now := time.Now()
	pc := model.Device{
		ID:          pcID,
		Role:        model.DeviceRolePC,
		PartnerID:   smartphoneID,
		DisplayName: pcName,
		PairedAt:    now,
	}
	smartphone := model.Device{
		ID:        smartphoneID,
		Role:      model.DeviceRoleSmartphone,
		PartnerID: pcID,
		PairedAt:  now,
	}

	r.mu.Lock()
	r.devices[smartphoneID] = smartphone
	r.devices[pcID] = pc
	r.mu.Unlock()

	return &pc, &smartphone
}

func (r *deviceRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

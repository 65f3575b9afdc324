package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
	redispkg "github.com/tonytopp/shelly-home/internal/redis"
)

// ErrDeviceNotFound is returned when an operation references an unknown device.
var ErrDeviceNotFound = errors.New("device not found")

const mirrorTTL = time.Hour

// StateStore persists reconciled device state. Satisfied by db.DB.
type StateStore interface {
	PersistDeviceState(ctx context.Context, dev *models.Device) error
}

// Registry owns the canonical device records. Every mutation of status, power,
// isOn and lastSeen funnels through its Apply methods; the HTTP layer and the
// telemetry path never write records directly.
type Registry struct {
	mu        sync.RWMutex
	devices   map[int64]*models.Device
	staleness time.Duration

	store  StateStore
	cache  *redispkg.Cache
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRegistry(store StateStore, cache *redispkg.Cache, staleness time.Duration, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		devices:   make(map[int64]*models.Device),
		staleness: staleness,
		store:     store,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Load seeds the registry from persisted records. Called once at startup.
func (r *Registry) Load(devices []models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range devices {
		d := devices[i]
		r.devices[d.ID] = &d
	}
	r.logger.Infow("device registry loaded", "devices", len(devices))
}

// Add registers a newly created device.
func (r *Registry) Add(dev models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[dev.ID] = &dev
}

// UpdateInfo applies user edits to addressing fields. Runtime state keeps
// whatever reconciliation last produced.
func (r *Registry) UpdateInfo(dev models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.devices[dev.ID]
	if !ok {
		return
	}
	cur.Name = dev.Name
	cur.Type = dev.Type
	cur.IPAddress = dev.IPAddress
	cur.MQTTTopic = dev.MQTTTopic
}

// Remove drops a device from the registry.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Get returns a copy of one device record.
func (r *Registry) Get(id int64) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	if !ok {
		return models.Device{}, false
	}
	return *dev, true
}

// Snapshot returns copies of every device record, ordered by id.
func (r *Registry) Snapshot() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveTopic maps a message topic to a device. A device matches on its exact
// topic or on any sub-topic beneath it, so ".../relay/0" and ".../status"
// route to the parent device.
func (r *Registry) ResolveTopic(topic string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, dev := range r.devices {
		if dev.MQTTTopic == "" {
			continue
		}
		if topic == dev.MQTTTopic || strings.HasPrefix(topic, dev.MQTTTopic+"/") {
			return id, true
		}
	}
	return 0, false
}

// ApplyObservation merges the fields present in a telemetry observation and
// refreshes liveness. Unknown devices are a logged no-op: the device may have
// been deleted while its last messages were still in flight.
func (r *Registry) ApplyObservation(id int64, obs models.DeviceObservation) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Infow("observation for unknown device ignored", "device", id)
		return
	}
	if obs.IsOn != nil {
		dev.IsOn = *obs.IsOn
	}
	if obs.Power != nil {
		dev.Power = *obs.Power
	}
	now := r.now()
	dev.LastSeen = &now
	dev.Status = models.StatusOnline
	snapshot := *dev
	r.mu.Unlock()

	r.persist(snapshot)
}

// ApplyCommandResult records the expected relay state immediately after a
// command is dispatched. Commands are assumed to succeed until a later
// observation says otherwise.
func (r *Registry) ApplyCommandResult(id int64, requestedOn bool) error {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	dev.IsOn = requestedOn
	snapshot := *dev
	r.mu.Unlock()

	r.persist(snapshot)
	return nil
}

// MarkStaleIfExpired flips devices without a recent observation to offline and
// returns their ids. Idempotent: a second sweep with no new observations
// changes nothing.
func (r *Registry) MarkStaleIfExpired(now time.Time) []int64 {
	r.mu.Lock()
	var flipped []models.Device
	for _, dev := range r.devices {
		if dev.Status != models.StatusOnline {
			continue
		}
		if dev.LastSeen == nil || now.Sub(*dev.LastSeen) > r.staleness {
			dev.Status = models.StatusOffline
			flipped = append(flipped, *dev)
		}
	}
	r.mu.Unlock()

	ids := make([]int64, 0, len(flipped))
	for _, dev := range flipped {
		ids = append(ids, dev.ID)
		r.logger.Infow("device marked offline", "device", dev.ID, "name", dev.Name)
		r.persist(dev)
	}
	return ids
}

// persist writes reconciled state out to the database and the Redis mirror.
// Best effort off the lock: the in-memory record is already authoritative.
func (r *Registry) persist(dev models.Device) {
	if r.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.store.PersistDeviceState(ctx, &dev); err != nil {
				r.logger.Errorw("failed to persist device state", "device", dev.ID, "error", err)
			}
		}()
	}
	if r.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.cache.SetJSON(ctx, redispkg.DeviceKey(dev.ID), dev, mirrorTTL); err != nil {
				r.logger.Warnw("failed to mirror device state", "device", dev.ID, "error", err)
			}
		}()
	}
}

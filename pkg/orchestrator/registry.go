package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/services"
)

// Registry tracks registered components (sensors, skills, services), their
// liveness, and pending commands. Everything is in-memory: a component that
// outlives an orchestrator restart re-registers on its next Known=false
// heartbeat ack.
type Registry struct {
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	deadRetention     time.Duration

	mu         sync.Mutex
	components map[string]*componentEntry
}

type componentEntry struct {
	reg      models.ComponentRegistration
	commands []models.Command
}

// NewRegistry creates a component registry from orchestrator config.
func NewRegistry(cfg *config.OrchestratorConfig) *Registry {
	return &Registry{
		heartbeatInterval: cfg.HeartbeatInterval,
		heartbeatTimeout:  cfg.HeartbeatTimeout,
		deadRetention:     cfg.DeadRetention,
		components:        make(map[string]*componentEntry),
	}
}

// Register upserts a component. A missing ComponentID is server-assigned;
// re-registering an existing ID replaces the registration (a restarted
// component) and drops any commands queued for the previous instance.
func (r *Registry) Register(reg models.ComponentRegistration) models.RegisterAck {
	if reg.ComponentType == "" {
		return models.RegisterAck{
			ComponentID:  reg.ComponentID,
			Accepted:     false,
			ErrorMessage: "component_type is required",
		}
	}
	for _, mode := range reg.TransportModes {
		if !mode.IsValid() {
			return models.RegisterAck{
				ComponentID:  reg.ComponentID,
				Accepted:     false,
				ErrorMessage: fmt.Sprintf("unknown transport mode %q", mode),
			}
		}
	}
	if reg.InstancePolicy != "" && reg.InstancePolicy != "single" && reg.InstancePolicy != "multi" {
		return models.RegisterAck{
			ComponentID:  reg.ComponentID,
			Accepted:     false,
			ErrorMessage: fmt.Sprintf("instance_policy must be single or multi, got %q", reg.InstancePolicy),
		}
	}

	if reg.ComponentID == "" {
		reg.ComponentID = uuid.NewString()
	}
	if reg.State == "" || !reg.State.IsValid() {
		reg.State = models.StateStarting
	}
	now := time.Now()
	reg.RegisteredAt = now
	reg.LastHeartbeat = now

	r.mu.Lock()
	if existing, ok := r.components[reg.ComponentID]; ok && existing.reg.Address != reg.Address {
		slog.Info("Component re-registered with new address",
			"component_id", reg.ComponentID,
			"name", reg.Name,
			"old_address", existing.reg.Address,
			"new_address", reg.Address)
	}
	r.components[reg.ComponentID] = &componentEntry{reg: reg}
	r.mu.Unlock()

	slog.Info("Component registered",
		"component_id", reg.ComponentID,
		"component_type", reg.ComponentType,
		"name", reg.Name,
		"state", reg.State)

	return models.RegisterAck{
		ComponentID:         reg.ComponentID,
		Accepted:            true,
		HeartbeatIntervalMS: r.heartbeatInterval.Milliseconds(),
	}
}

// Unregister removes a component. Unknown IDs are a no-op, not an error.
func (r *Registry) Unregister(componentID string) {
	r.mu.Lock()
	entry, ok := r.components[componentID]
	if ok {
		delete(r.components, componentID)
	}
	r.mu.Unlock()

	if !ok {
		slog.Warn("Unregister for unknown component", "component_id", componentID)
		return
	}
	slog.Info("Component unregistered", "component_id", componentID, "name", entry.reg.Name)
}

// Heartbeat records liveness, merges reported metrics, and drains pending
// commands in one atomic step: each command is delivered exactly once.
// Unknown components get Known=false so they re-register. A heartbeat from
// a DEAD component revives it.
func (r *Registry) Heartbeat(componentID string, state models.ComponentState, metrics map[string]float64) models.HeartbeatAck {
	r.mu.Lock()
	entry, ok := r.components[componentID]
	if !ok {
		r.mu.Unlock()
		slog.Warn("Heartbeat from unknown component", "component_id", componentID)
		return models.HeartbeatAck{ComponentID: componentID, Known: false}
	}

	wasDead := entry.reg.State == models.StateDead
	entry.reg.LastHeartbeat = time.Now()
	switch {
	case state != "" && state.IsValid():
		entry.reg.State = state
	case wasDead:
		// Stateless heartbeat from a dead component still proves life.
		entry.reg.State = models.StateActive
	}
	for k, v := range metrics {
		if entry.reg.Metrics == nil {
			entry.reg.Metrics = make(map[string]float64, len(metrics))
		}
		entry.reg.Metrics[k] = v
	}
	commands := entry.commands
	entry.commands = nil
	newState := entry.reg.State
	r.mu.Unlock()

	if wasDead {
		slog.Info("Dead component revived by heartbeat",
			"component_id", componentID, "state", newState)
	}
	return models.HeartbeatAck{ComponentID: componentID, Known: true, Commands: commands}
}

// SendCommand queues a command for delivery with the component's next
// heartbeat ack. Unknown components are an error: the caller should not
// believe a command was queued for nobody.
func (r *Registry) SendCommand(componentID string, cmd models.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now()
	}

	r.mu.Lock()
	entry, ok := r.components[componentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("component %s: %w", componentID, services.ErrNotFound)
	}
	entry.commands = append(entry.commands, cmd)
	pending := len(entry.commands)
	r.mu.Unlock()

	slog.Info("Command queued for component",
		"component_id", componentID,
		"command", cmd.Name,
		"command_id", cmd.ID,
		"pending", pending)
	return nil
}

// Resolve returns a component of the given type: the first ACTIVE one in
// registration order, else the first registered one of that type, else
// not-found.
func (r *Registry) Resolve(componentType string) (models.ComponentRegistration, error) {
	r.mu.Lock()
	candidates := make([]models.ComponentRegistration, 0, 4)
	for _, entry := range r.components {
		if entry.reg.ComponentType == componentType {
			candidates = append(candidates, cloneRegistration(entry.reg))
		}
	}
	r.mu.Unlock()

	if len(candidates) == 0 {
		return models.ComponentRegistration{}, fmt.Errorf("component type %s: %w", componentType, services.ErrNotFound)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].RegisteredAt.Equal(candidates[j].RegisteredAt) {
			return candidates[i].RegisteredAt.Before(candidates[j].RegisteredAt)
		}
		return candidates[i].ComponentID < candidates[j].ComponentID
	})
	for _, c := range candidates {
		if c.State == models.StateActive {
			return c, nil
		}
	}
	return candidates[0], nil
}

// Get returns one registration by ID.
func (r *Registry) Get(componentID string) (models.ComponentRegistration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.components[componentID]
	if !ok {
		return models.ComponentRegistration{}, false
	}
	reg := cloneRegistration(entry.reg)
	reg.StatusMessage = heartbeatStatus(time.Since(reg.LastHeartbeat))
	return reg, true
}

// List returns registrations, optionally filtered by component type, in
// registration order. Each carries a human-readable heartbeat age.
func (r *Registry) List(componentType string) []models.ComponentRegistration {
	now := time.Now()

	r.mu.Lock()
	out := make([]models.ComponentRegistration, 0, len(r.components))
	for _, entry := range r.components {
		if componentType != "" && entry.reg.ComponentType != componentType {
			continue
		}
		reg := cloneRegistration(entry.reg)
		reg.StatusMessage = heartbeatStatus(now.Sub(reg.LastHeartbeat))
		out = append(out, reg)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ComponentID < out[j].ComponentID
	})
	return out
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.components)
}

// UpdateMetrics applies a system.metrics event: the structured payload
// names the component (component_id, or the request meta's source
// component) and its numeric values are merged into that component's
// metrics. Reports for unknown components are dropped with a warning.
func (r *Registry) UpdateMetrics(ev models.Event) {
	componentID, _ := ev.Structured["component_id"].(string)
	if componentID == "" && ev.Meta != nil {
		componentID = ev.Meta.SourceComponent
	}
	if componentID == "" {
		slog.Warn("Metrics event names no component, dropped", "event_id", ev.ID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.components[componentID]
	if !ok {
		slog.Warn("Metrics event for unknown component, dropped",
			"component_id", componentID, "event_id", ev.ID)
		return
	}
	for k, v := range ev.Structured {
		f, isNum := v.(float64)
		if !isNum {
			continue
		}
		if entry.reg.Metrics == nil {
			entry.reg.Metrics = make(map[string]float64)
		}
		entry.reg.Metrics[k] = f
	}
}

// scanOnce sweeps liveness: live components silent past the heartbeat
// timeout become DEAD; DEAD components silent past the retention window are
// removed entirely.
func (r *Registry) scanOnce(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.components {
		silent := now.Sub(entry.reg.LastHeartbeat)
		switch {
		case entry.reg.State == models.StateDead:
			if silent > r.deadRetention {
				delete(r.components, id)
				slog.Info("Dead component dropped from registry",
					"component_id", id, "name", entry.reg.Name)
			}
		case silent > r.heartbeatTimeout:
			entry.reg.State = models.StateDead
			slog.Warn("Component marked DEAD after heartbeat timeout",
				"component_id", id,
				"name", entry.reg.Name,
				"last_heartbeat", entry.reg.LastHeartbeat)
		}
	}
}

func heartbeatStatus(age time.Duration) string {
	return fmt.Sprintf("Last heartbeat: %dms ago", age.Milliseconds())
}

// cloneRegistration copies a registration so callers never share the
// registry's mutable metrics map.
func cloneRegistration(reg models.ComponentRegistration) models.ComponentRegistration {
	out := reg
	if reg.Metrics != nil {
		out.Metrics = make(map[string]float64, len(reg.Metrics))
		for k, v := range reg.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

package models

import "time"

// ComponentState is the lifecycle state a component reports in heartbeats.
type ComponentState string

const (
	StateUnknown  ComponentState = "UNKNOWN"
	StateStarting ComponentState = "STARTING"
	StateActive   ComponentState = "ACTIVE"
	StatePaused   ComponentState = "PAUSED"
	StateStopping ComponentState = "STOPPING"
	StateStopped  ComponentState = "STOPPED"
	StateError    ComponentState = "ERROR"
	// StateDead is orchestrator-assigned after heartbeat timeout; a
	// component never reports it about itself.
	StateDead ComponentState = "DEAD"
)

// IsValid checks if the state is a known value.
func (s ComponentState) IsValid() bool {
	switch s {
	case StateUnknown, StateStarting, StateActive, StatePaused,
		StateStopping, StateStopped, StateError, StateDead:
		return true
	default:
		return false
	}
}

// TransportMode describes how a component exchanges events.
type TransportMode string

const (
	// TransportStreaming holds a persistent bidirectional stream.
	TransportStreaming TransportMode = "streaming"
	// TransportBatched publishes periodic batches.
	TransportBatched TransportMode = "batched"
	// TransportEvent publishes single events as they occur.
	TransportEvent TransportMode = "event"
)

// IsValid checks if the transport mode is a known value.
func (m TransportMode) IsValid() bool {
	return m == TransportStreaming || m == TransportBatched || m == TransportEvent
}

// Component types as registered with the orchestrator.
const (
	ComponentTypeSensor  = "sensor"
	ComponentTypeSkill   = "skill"
	ComponentTypeService = "service"
)

// Command names the orchestrator may dispatch. The set is open: unknown
// names are delivered as-is and the component decides.
const (
	CommandStart       = "START"
	CommandStop        = "STOP"
	CommandPause       = "PAUSE"
	CommandResume      = "RESUME"
	CommandReload      = "RELOAD"
	CommandHealthCheck = "HEALTH_CHECK"
	CommandRecover     = "RECOVER"
)

// ComponentRegistration is the registry's view of one component.
type ComponentRegistration struct {
	ComponentID    string          `json:"component_id"`
	ComponentType  string          `json:"component_type"`
	Name           string          `json:"name"`
	Address        string          `json:"address,omitempty"`
	TransportModes []TransportMode `json:"transport_modes,omitempty"`
	Capabilities   []string        `json:"capabilities,omitempty"`

	// SupportedCommands lists command names the component executes;
	// InstancePolicy is "single" or "multi".
	SupportedCommands []string `json:"supported_commands,omitempty"`
	InstancePolicy    string   `json:"instance_policy,omitempty"`

	State         ComponentState     `json:"state"`
	RegisteredAt  time.Time          `json:"registered_at"`
	LastHeartbeat time.Time          `json:"last_heartbeat"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	StatusMessage string             `json:"status_message,omitempty"`
}

// Command is an orchestrator instruction delivered with the next heartbeat
// ack. Args are opaque strings handed over bit-identical exactly once;
// lenient defaulting for missing or wrongly-typed args is the component's
// concern, never the orchestrator's.
type Command struct {
	ID       string            `json:"command_id"`
	Name     string            `json:"name"`
	Args     map[string]string `json:"args,omitempty"`
	IssuedAt time.Time         `json:"issued_at"`
}

// RegisterAck answers a registration: the (possibly server-assigned)
// component ID plus the heartbeat interval the component must honor.
type RegisterAck struct {
	ComponentID         string `json:"component_id"`
	Accepted            bool   `json:"accepted"`
	ErrorMessage        string `json:"error_message,omitempty"`
	HeartbeatIntervalMS int64  `json:"heartbeat_interval_ms"`
}

// HeartbeatAck carries pending commands back to the component. Known=false
// tells an unregistered component to re-register.
type HeartbeatAck struct {
	ComponentID string    `json:"component_id"`
	Known       bool      `json:"known"`
	Commands    []Command `json:"commands,omitempty"`
}

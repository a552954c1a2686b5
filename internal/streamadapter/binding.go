package streamadapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/funcmesh/internal/invoke"
)

// Role determines how a binding connects its artifact to broker topics.
type Role int

const (
	// RoleSource publishes a source artifact's emissions to a topic.
	RoleSource Role = iota
	// RoleProcessor consumes a topic through a transform and republishes.
	RoleProcessor
	// RoleSink drains a topic into a sink artifact.
	RoleSink
)

// String returns the manifest spelling of the role.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleProcessor:
		return "processor"
	case RoleSink:
		return "sink"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// ParseRole maps a manifest spelling to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source":
		return RoleSource, nil
	case "processor":
		return RoleProcessor, nil
	case "sink":
		return RoleSink, nil
	default:
		return 0, fmt.Errorf("unknown binding role %q (want source, processor, or sink)", s)
	}
}

// Binding associates a registered artifact with broker topics. It holds
// the artifact by name only: deregistering the artifact leaves the binding
// running, and each message simply fails its lookup until a new artifact
// takes the name.
type Binding struct {
	Artifact    string
	Role        Role
	InputTopic  string
	OutputTopic string
	// Interval is the emission period for source bindings. Zero means
	// one second.
	Interval time.Duration
	// OnError selects the element failure policy for invocations made on
	// behalf of this binding.
	OnError invoke.Policy
}

// Validate checks the role's topic requirements.
func (b Binding) Validate() error {
	if b.Artifact == "" {
		return fmt.Errorf("binding has no artifact name")
	}
	switch b.Role {
	case RoleSource:
		if b.OutputTopic == "" {
			return fmt.Errorf("source binding %q needs an output topic", b.Artifact)
		}
		if b.InputTopic != "" {
			return fmt.Errorf("source binding %q cannot have an input topic", b.Artifact)
		}
	case RoleProcessor:
		if b.InputTopic == "" || b.OutputTopic == "" {
			return fmt.Errorf("processor binding %q needs both input and output topics", b.Artifact)
		}
	case RoleSink:
		if b.InputTopic == "" {
			return fmt.Errorf("sink binding %q needs an input topic", b.Artifact)
		}
		if b.OutputTopic != "" {
			return fmt.Errorf("sink binding %q cannot have an output topic", b.Artifact)
		}
	default:
		return fmt.Errorf("binding %q has unknown role", b.Artifact)
	}
	return nil
}

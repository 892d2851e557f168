package bus

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"teams-chat/internal/observability"
)

// Broker carries events between processes.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Consume blocks, passing every received event to handle, until ctx is done.
	Consume(ctx context.Context, handle func(Event)) error
	Close() error
}

// Cluster extends a Hub across processes. Local subscribers are served directly;
// every event is also forwarded through the broker stamped with this node's id,
// and events that come back carrying the same id are skipped.
type Cluster struct {
	*Hub
	broker Broker
	nodeID string
}

// NewNodeID returns a random node identity.
func NewNodeID() string {
	return uuid.NewString()
}

func NewCluster(hub *Hub, broker Broker, nodeID string) *Cluster {
	return &Cluster{Hub: hub, broker: broker, nodeID: nodeID}
}

// NodeID returns the identity stamped on outgoing events.
func (c *Cluster) NodeID() string {
	return c.nodeID
}

// Publish delivers locally, then forwards to the other nodes.
func (c *Cluster) Publish(ctx context.Context, ev Event) error {
	ev.NodeID = c.nodeID
	c.Hub.deliver(ev)

	if err := c.broker.Publish(ctx, ev); err != nil {
		observability.IncBusBrokerError()
		return fmt.Errorf("broker publish %s: %w", ev.Topic, err)
	}
	return nil
}

// Run consumes remote events until ctx is done.
func (c *Cluster) Run(ctx context.Context) error {
	glog.Infof("bus: node %s consuming", c.nodeID)
	return c.broker.Consume(ctx, func(ev Event) {
		if ev.NodeID == c.nodeID {
			return
		}
		c.Hub.deliver(ev)
	})
}

func (c *Cluster) Close() error {
	return c.broker.Close()
}

var _ Bus = (*Cluster)(nil)

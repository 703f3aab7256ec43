package test

import (
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/transport/memory"
)

// Network connects a coordinator and its clients in memory.
type Network struct {
	*memory.Bus
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{Bus: memory.NewBus()}
}

// Client returns the connection of id, which acts as both its dealer and its
// subscriber.
func (n *Network) Client(id party.ID) *memory.Client {
	return n.Connect(id)
}

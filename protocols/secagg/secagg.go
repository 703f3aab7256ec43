// Package secagg holds what the coordinator and the participants of a secure
// aggregation session agree on beyond the wire codecs: signature contexts and
// acknowledgements.
//
// A session runs through five phases (see internal/phase). The coordinator
// drives the transitions, and announces each one with a broadcast:
//
//	HS  verification keys, in list order
//	KE  exchange public keys, empty for clients culled at key exchange
//	IS  the sharing parameters (params.Sharing, 48 bytes)
//	EC  dropouts followed by the checks (validity.Checks)
//	AG  the final dropout set
//
// A client's index is the position of its verification key in HS.
package secagg

const (
	// ContextKeyExchange signs a client's exchange public key.
	ContextKeyExchange = "key exchange"
	// ContextAggregate signs a client's aggregate.
	ContextAggregate = "aggregate"
)

// Acknowledgements sent by the coordinator.
const (
	AckKeyExchange = "Your public key has been saved."
	AckAggregate   = "Your aggregate has been saved."
)

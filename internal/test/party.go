package test

import (
	"github.com/taurusgroup/secagg/pkg/party"
)

// PartyIDs returns n IDs represented as simple strings, in registration order.
func PartyIDs(n int) []party.ID {
	baseString := ""
	ids := make([]party.ID, n)
	for i := range ids {
		if i%26 == 0 && i > 0 {
			baseString += "a"
		}
		ids[i] = party.ID(baseString + string('a'+rune(i%26)))
	}
	return ids
}

package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/keys"
	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/pkg/wire"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
)

// receiver is client 0 of a two-client session, expecting shares from
// client 1.
func receiver(t *testing.T) (*session, *keys.ExchangeKey, *keys.Channel) {
	self, err := keys.GenerateExchangeKey()
	require.NoError(t, err)
	peer, err := keys.GenerateExchangeKey()
	require.NoError(t, err)
	layout, err := validity.NewLayout(4, 2, 4, false)
	require.NoError(t, err)

	s := &session{
		participant: &participant{index: 0, n: 2},
		f:           field.MustNew[uint64](params.Default.P),
		layout:      layout,
		channels:    make([]*keys.Channel, 2),
		senders:     map[string]int{string(peer.Public()): 1},
		rows:        make([][]uint64, 2),
	}
	s.channels[1], err = self.Channel(peer.Public())
	require.NoError(t, err)
	toSelf, err := peer.Channel(self.Public())
	require.NoError(t, err)
	return s, peer, toSelf
}

func TestStoreShare(t *testing.T) {
	s, peer, toSelf := receiver(t)
	row := []uint64{5, 6}
	err := s.store(transport.Frames{peer.Public(), toSelf.Seal(wire.EncodeScalars(row))})
	require.NoError(t, err)
	assert.Equal(t, row, s.rows[1])
}

func TestStoreBlamesSender(t *testing.T) {
	s, peer, toSelf := receiver(t)

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{"garbage", []byte("not a ciphertext")},
		{"wrong length", toSelf.Seal(wire.EncodeScalars([]uint64{1, 2, 3}))},
		{"not in field", toSelf.Seal(wire.EncodeScalars([]uint64{1, params.Default.P}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.store(transport.Frames{peer.Public(), tt.ciphertext})
			assert.ErrorIs(t, err, protocol.ErrDecryption)
			var perr protocol.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, phase.ErrorCorrection, perr.Phase)
			assert.Equal(t, []int{1}, perr.Indices)
			assert.Nil(t, s.rows[1])
		})
	}

	stranger, err := keys.GenerateExchangeKey()
	require.NoError(t, err)
	err = s.store(transport.Frames{stranger.Public(), []byte{1}})
	assert.ErrorIs(t, err, protocol.ErrUnidentified)
}

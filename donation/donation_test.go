package donation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berith-chain/minefleet/mineapi"
)

func TestInterleaverFiresEveryN(t *testing.T) {
	in := NewInterleaver(3)
	var fired []bool
	for i := 0; i < 7; i++ {
		fired = append(fired, in.Tick())
	}
	assert.Equal(t, []bool{false, false, true, false, false, true, false}, fired)
}

func TestStaticProviderRequiresAddress(t *testing.T) {
	_, err := StaticProvider{}.DonationAddress(context.Background())
	assert.Error(t, err)

	addr, err := StaticProvider{Address: "donation-addr"}.DonationAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "donation-addr", addr)
}

func TestSubmitDegradesOnDonationWindowClosed(t *testing.T) {
	api := mineapi.NewFake()
	api.DisableDonations()

	_, err := Submit(context.Background(), api, "dest", "orig", "sig")
	assert.ErrorIs(t, err, mineapi.ErrDonationWindowClosed)
}

package netbeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func nopWrite(int) error { return nil }

// advance consumes sequence numbers with commands until the next one is next.
func advance(t *testing.T, c *Correlator, next int) {
	for {
		n, err := c.Send(nil, nopWrite)
		require.NoError(t, err)
		if n == next-1 {
			return
		}
	}
}

func TestCorrelatorFIFO(t *testing.T) {
	var c Correlator
	advance(t, &c, 10)

	var got []int
	for i := 0; i < 3; i++ {
		n, err := c.Send(func(r Reply) { got = append(got, r.Seqno) }, nopWrite)
		require.NoError(t, err)
		assert.Equal(t, 10+i, n)
	}
	assert.Equal(t, 3, c.Pending())

	for _, seqno := range []int{10, 11, 12} {
		obs, dup, err := c.Match(seqno)
		require.NoError(t, err)
		require.False(t, dup)
		obs(Reply{Seqno: seqno})
	}
	assert.Equal(t, []int{10, 11, 12}, got)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorOutOfOrder(t *testing.T) {
	var c Correlator
	advance(t, &c, 10)
	for i := 0; i < 2; i++ {
		_, err := c.Send(func(Reply) {}, nopWrite)
		require.NoError(t, err)
	}

	_, _, err := c.Match(11)
	var pe *ProtocolError
	require.True(t, xerrors.As(err, &pe), "got %v", err)
	assert.True(t, IsFatal(err))
}

func TestCorrelatorDuplicateReply(t *testing.T) {
	var c Correlator
	advance(t, &c, 10)
	calls := 0
	_, err := c.Send(func(Reply) { calls++ }, nopWrite)
	require.NoError(t, err)

	obs, dup, err := c.Match(10)
	require.NoError(t, err)
	require.False(t, dup)
	obs(Reply{Seqno: 10})

	obs, dup, err = c.Match(10)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Nil(t, obs)
	assert.Equal(t, 1, calls)
}

func TestCorrelatorEmptyFIFO(t *testing.T) {
	var c Correlator
	_, err := c.Send(nil, nopWrite)
	require.NoError(t, err)

	_, _, err = c.Match(1)
	assert.True(t, IsFatal(err), "got %v", err)
}

func TestCorrelatorWriteFailure(t *testing.T) {
	var c Correlator
	_, err := c.Send(func(Reply) {}, func(int) error { return ErrNotReady })
	assert.True(t, xerrors.Is(err, ErrNotReady))
	assert.Equal(t, 0, c.Pending())

	n, err := c.Send(nil, nopWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed write must not consume a sequence number")
}

package swaps

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaults(t *testing.T) {
	st := NewStore(0).Snapshot()

	assert.Equal(t, DefaultSlippage, st.Request.Slippage)
	assert.Equal(t, OrderRecommended, st.Request.Order)
	assert.True(t, st.Request.InputAmount.IsZero())
	assert.Equal(t, TxIdle, st.Swap.State)
	assert.Equal(t, TxIdle, st.Approval.State)

	assert.Equal(t, 0.03, NewStore(0.03).Request().Slippage)
}

func TestStoreSameTokenClearsOtherSide(t *testing.T) {
	s := NewStore(0)
	require.NoError(t, s.SetInput(usdcMainnet, "10"))
	s.SetOutput(usdtMainnet)

	require.NoError(t, s.SetInput(usdtMainnet, ""))
	req := s.Request()
	assert.Equal(t, usdtMainnet, req.InputToken)
	assert.True(t, req.OutputToken.IsZero())
	assert.Equal(t, "10", req.InputAmount.Display)

	s.SetOutput(usdtMainnet)
	req = s.Request()
	assert.True(t, req.InputToken.IsZero())
	assert.True(t, req.InputAmount.IsZero())
}

func TestStoreInverseKeepsDisplayAmount(t *testing.T) {
	s := NewStore(0)
	require.NoError(t, s.SetInput(usdcMainnet, "1.5"))
	s.SetOutput(ethMainnet)

	s.InverseTokens()

	req := s.Request()
	assert.Equal(t, ethMainnet, req.InputToken)
	assert.Equal(t, usdcMainnet, req.OutputToken)
	assert.Equal(t, "1.5", req.InputAmount.Display)
	assert.Equal(t, "1500000000000000000", req.InputAmount.Raw.String())
}

func TestStoreSlippageBounds(t *testing.T) {
	s := NewStore(0)

	assert.Error(t, s.SetSlippage(0))
	assert.Error(t, s.SetSlippage(0.51))
	require.NoError(t, s.SetSlippage(0.5))
	assert.Equal(t, 0.5, s.Request().Slippage)
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore(0)
	require.NoError(t, s.SetInput(usdcMainnet, "3"))

	st := s.Snapshot()
	st.Request.InputAmount.Raw.SetInt64(1)

	assert.Equal(t, "3000000", s.Request().InputAmount.Raw.String())
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore(0)

	var got []State
	unsubscribe := s.Subscribe(func(st State) { got = append(got, st) })

	receiver := common.HexToAddress("0x2222222222222222222222222222222222222222")
	s.SetReceiver(receiver)
	s.SetOrder(OrderSafest)
	unsubscribe()
	s.ResetOutput()

	require.Len(t, got, 2)
	assert.Equal(t, receiver, got[0].Request.Receiver)
	assert.Equal(t, OrderSafest, got[1].Request.Order)
}

func TestStoreResetAfterSuccessKeepsOutcome(t *testing.T) {
	s := publishedStore(usdcMainnet, usdtMainnet, "100")
	s.setExecution(StageConfirming, successStatus(common.HexToHash("0x01")))

	s.resetAfterSuccess()

	st := s.Snapshot()
	assert.Nil(t, st.Quote)
	assert.True(t, st.Request.InputToken.IsZero())
	assert.Equal(t, TxSuccess, st.Swap.State)
	assert.Equal(t, StageSuccess, st.Stage)
}

func TestStoreDeliversSnapshotsInOrder(t *testing.T) {
	s := NewStore(0)

	var mu sync.Mutex
	var versions []uint64
	var last State
	s.Subscribe(func(st State) {
		mu.Lock()
		versions = append(versions, st.version)
		last = st
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(slippage float64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, s.SetSlippage(slippage))
			}
		}(float64(i) / 100)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(versions); i++ {
		require.Greater(t, versions[i], versions[i-1])
	}
	final := s.Snapshot()
	assert.Equal(t, final.version, last.version, "the newest state is always delivered")
	assert.Equal(t, final.Request.Slippage, last.Request.Slippage)
}

func TestStoreSubscriberWritesAreQueued(t *testing.T) {
	s := NewStore(0)

	var orders []RoutePreference
	s.Subscribe(func(st State) {
		orders = append(orders, st.Request.Order)
		if st.Request.Order == OrderSafest {
			s.SetOrder(OrderCheapest)
		}
	})

	s.SetOrder(OrderSafest)

	assert.Equal(t, []RoutePreference{OrderSafest, OrderCheapest}, orders)
	assert.Equal(t, OrderCheapest, s.Request().Order)
}

func TestStoreInputWritesAreAtomic(t *testing.T) {
	s := NewStore(0)
	require.NoError(t, s.SetInput(usdcMainnet, "1.5"))

	var mu sync.Mutex
	var inconsistent int
	s.Subscribe(func(st State) {
		in := st.Request.InputAmount
		want, err := ParseAmount(in.Display, st.Request.InputToken.Decimals)
		if err != nil || want.Raw.Cmp(in.Raw) != 0 {
			mu.Lock()
			inconsistent++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tok := usdcMainnet
			if i%2 == 0 {
				tok = ethMainnet
			}
			assert.NoError(t, s.SetInput(tok, ""))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, s.SetInputAmount("2.25"))
		}
	}()
	wg.Wait()

	mu.Lock()
	assert.Zero(t, inconsistent, "raw amount always matches the display at the token's decimals")
	mu.Unlock()

	st := s.Snapshot()
	want, err := ParseAmount(st.Request.InputAmount.Display, st.Request.InputToken.Decimals)
	require.NoError(t, err)
	assert.Equal(t, want.Raw.String(), st.Request.InputAmount.Raw.String())
}

func TestStoreRejectedInputPublishesNothing(t *testing.T) {
	s := NewStore(0)
	calls := 0
	s.Subscribe(func(State) { calls++ })

	assert.Error(t, s.SetInputAmount("ten"))
	assert.Error(t, s.SetInput(usdcMainnet, "-1"))
	assert.Zero(t, calls)
	assert.True(t, s.Request().InputToken.IsZero())
}

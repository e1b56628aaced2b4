package indexer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

const (
	distAddr  = "0x6666666666666666666666666666666666666666"
	ownerAddr = "0x7777777777777777777777777777777777777777"
	wideToken = "0x8888888888888888888888888888888888888888"
)

func (h *harness) initCampaign(rewards []string, amounts []*big.Int) Result {
	return h.emit(domain.EventInitialized, distAddr, created, &domain.Initialized{
		RewardsTokenAddresses: rewards,
		StakableTokenAddress:  fpmmAddr,
		RewardsAmounts:        amounts,
		StartingTimestamp:     created + 100,
		EndingTimestamp:       created + 200,
		Locked:                true,
		StakingCap:            big.NewInt(0),
	})
}

func TestCampaignLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.reader.decimals[wideToken] = 24
	h.setupMarket()

	h.emit(domain.EventDistributionCreated, stakingAddr, created, &domain.DistributionCreated{Owner: ownerAddr, DeployedAt: distAddr})
	h.initCampaign([]string{gno, wideToken}, []*big.Int{bi("5"), bi("6")})

	c := get[domain.Campaign](h, distAddr)
	assert.True(t, c.Initialized)
	assert.Equal(t, ownerAddr, c.Owner)
	assert.Equal(t, int64(100), c.Duration)
	assert.Equal(t, fpmmAddr, c.Market)
	assert.Equal(t, []string{gno, wideToken}, c.RewardTokens)
	assert.Equal(t, 1, get[domain.StakingRewardsFactory](h, stakingAddr).InitializedCampaignsCount)
	assert.Equal(t, "1", get[domain.Token](h, wideToken).Scale.String())

	h.emit(domain.EventStaked, distAddr, created+150, &domain.Staked{Staker: buyerAddr, Amount: bi("30")})
	deposit := get[domain.LMDeposit](h, h.lastTx())
	assert.Equal(t, "30", deposit.Amount.String())
	h.emit(domain.EventWithdrawn, distAddr, created+160, &domain.Withdrawn{Withdrawer: buyerAddr, Amount: bi("10")})
	assert.Equal(t, "20", get[domain.Campaign](h, distAddr).StakedAmount.String())

	h.emit(domain.EventClaimed, distAddr, created+170, &domain.Claimed{Claimer: buyerAddr, Amounts: []*big.Int{bi("1"), bi("2"), bi("3")}})
	claim := get[domain.LMClaim](h, h.lastTx())
	require.Len(t, claim.Amounts, 2)
	assert.Equal(t, "2", claim.Amounts[1].String())

	h.emit(domain.EventRecovered, distAddr, created+210, &domain.Recovered{Amounts: []*big.Int{bi("4")}})
	assert.Len(t, get[domain.LMRecovery](h, h.lastTx()).Amounts, 1)

	h.emit(domain.EventUpdatedRewards, distAddr, created+180, &domain.UpdatedRewards{Amounts: []*big.Int{bi("7"), bi("8")}})
	assert.Equal(t, "8", get[domain.Campaign](h, distAddr).RewardAmounts[1].String())

	h.emit(domain.EventCanceled, distAddr, created+190, &domain.Canceled{})
	assert.False(t, get[domain.Campaign](h, distAddr).Initialized)
	assert.Equal(t, 0, get[domain.StakingRewardsFactory](h, stakingAddr).InitializedCampaignsCount)

	h.initCampaign([]string{gno}, []*big.Int{bi("9")})
	c = get[domain.Campaign](h, distAddr)
	assert.True(t, c.Initialized)
	assert.Equal(t, "0", c.StakedAmount.String())
}

func TestInvalidInitializationChangesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setupMarket()
	h.emit(domain.EventDistributionCreated, stakingAddr, created, &domain.DistributionCreated{Owner: ownerAddr, DeployedAt: distAddr})

	res := h.initCampaign([]string{gno}, []*big.Int{bi("1"), bi("2")})
	assert.True(t, res.Skipped)
	assert.False(t, h.exists(domain.KindStakingRewardsFactory, stakingAddr))
	assert.False(t, h.exists(domain.KindCampaign, distAddr))
}

func TestCampaignEventsWithoutCampaignAreSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.emit(domain.EventStaked, distAddr, created, &domain.Staked{Staker: buyerAddr, Amount: bi("1")})
	assert.True(t, res.Skipped)
	res = h.emit(domain.EventCanceled, distAddr, created, &domain.Canceled{})
	assert.True(t, res.Skipped)
}

package domain

import "math/big"

// Campaign is a liquidity-mining distribution keyed by its contract address.
// A canceled campaign keeps its state and may be initialized again.
type Campaign struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	StartsAt      int64      `json:"startsAt"`
	EndsAt        int64      `json:"endsAt"`
	Duration      int64      `json:"duration"`
	Locked        bool       `json:"locked"`
	Market        string     `json:"fpmm"`
	RewardTokens  []string   `json:"rewardTokens"`
	RewardAmounts []*big.Int `json:"rewardAmounts"`
	StakedAmount  *big.Int   `json:"stakedAmount"`
	Initialized   bool       `json:"initialized"`
}

func (c *Campaign) EntityKind() EntityKind { return KindCampaign }
func (c *Campaign) EntityID() string       { return c.ID }

// StakingRewardsFactory counts currently initialized campaigns.
type StakingRewardsFactory struct {
	ID                        string `json:"id"`
	InitializedCampaignsCount int    `json:"initializedCampaignsCount"`
}

func (f *StakingRewardsFactory) EntityKind() EntityKind { return KindStakingRewardsFactory }
func (f *StakingRewardsFactory) EntityID() string       { return f.ID }

// Distribution registers a distribution contract deployed by the factory.
type Distribution struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	CreatedAt int64  `json:"createdAt"`
}

func (d *Distribution) EntityKind() EntityKind { return KindDistribution }
func (d *Distribution) EntityID() string       { return d.ID }

// LMDeposit is a stake ledger row keyed by transaction hash.
type LMDeposit struct {
	ID        string   `json:"id"`
	Campaign  string   `json:"liquidityMiningCampaign"`
	User      string   `json:"user"`
	Amount    *big.Int `json:"amount"`
	Timestamp int64    `json:"timestamp"`
}

func (d *LMDeposit) EntityKind() EntityKind { return KindLMDeposit }
func (d *LMDeposit) EntityID() string       { return d.ID }

// LMWithdrawal is an unstake ledger row keyed by transaction hash.
type LMWithdrawal struct {
	ID        string   `json:"id"`
	Campaign  string   `json:"liquidityMiningCampaign"`
	User      string   `json:"user"`
	Amount    *big.Int `json:"amount"`
	Timestamp int64    `json:"timestamp"`
}

func (w *LMWithdrawal) EntityKind() EntityKind { return KindLMWithdrawal }
func (w *LMWithdrawal) EntityID() string       { return w.ID }

// LMClaim is a reward claim ledger row keyed by transaction hash.
type LMClaim struct {
	ID        string     `json:"id"`
	Campaign  string     `json:"liquidityMiningCampaign"`
	User      string     `json:"user"`
	Amounts   []*big.Int `json:"amounts"`
	Timestamp int64      `json:"timestamp"`
}

func (c *LMClaim) EntityKind() EntityKind { return KindLMClaim }
func (c *LMClaim) EntityID() string       { return c.ID }

// LMRecovery is an unassigned-reward recovery ledger row.
type LMRecovery struct {
	ID        string     `json:"id"`
	Campaign  string     `json:"liquidityMiningCampaign"`
	Amounts   []*big.Int `json:"amounts"`
	Timestamp int64      `json:"timestamp"`
}

func (r *LMRecovery) EntityKind() EntityKind { return KindLMRecovery }
func (r *LMRecovery) EntityID() string       { return r.ID }

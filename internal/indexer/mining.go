package indexer

import (
	"log/slog"
	"math/big"
	"strings"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
)

// handleDistributionCreated registers a distribution deployed by the staking
// rewards factory. Only registered distributions are indexed afterwards.
func (d *Dispatcher) handleDistributionCreated(s *Session, ev domain.Event) error {
	p, err := payload[domain.DistributionCreated](ev)
	if err != nil {
		return err
	}
	if ev.Address != d.cfg.StakingRewardsFactory {
		return skip(slog.LevelInfo, "ignoring distribution from foreign factory")
	}
	id := strings.ToLower(p.DeployedAt)
	s.Save(&domain.Distribution{
		ID:        id,
		Owner:     strings.ToLower(p.Owner),
		CreatedAt: ev.BlockTimestamp,
	})
	d.logger.Info("distribution registered", slog.String("distribution", id))
	return nil
}

// handleDistributionInitialized (re)initializes a campaign. Validation runs
// before the factory counter moves, so a rejected initialization changes
// nothing.
func (d *Dispatcher) handleDistributionInitialized(s *Session, ev domain.Event) error {
	p, err := payload[domain.Initialized](ev)
	if err != nil {
		return err
	}
	dist, ok, err := Load[domain.Distribution](s, ev.Address)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelError, "initialized distribution was not created by the factory")
	}
	if len(p.RewardsTokenAddresses) != len(p.RewardsAmounts) {
		return skip(slog.LevelError, "inconsistent reward tokens and amounts",
			slog.Int("tokens", len(p.RewardsTokenAddresses)), slog.Int("amounts", len(p.RewardsAmounts)))
	}
	if err := requireAmounts(ev, p.RewardsAmounts...); err != nil {
		return err
	}
	fpmm := strings.ToLower(p.StakableTokenAddress)
	if _, ok, err := Load[domain.Market](s, fpmm); err != nil {
		return err
	} else if !ok {
		return skip(slog.LevelError, "could not get market for stakable token", slog.String("token", fpmm))
	}

	factory, ok, err := Load[domain.StakingRewardsFactory](s, d.cfg.StakingRewardsFactory)
	if err != nil {
		return err
	}
	if !ok {
		factory = &domain.StakingRewardsFactory{ID: d.cfg.StakingRewardsFactory}
	}
	factory.InitializedCampaignsCount++
	s.Save(factory)

	c, ok, err := Load[domain.Campaign](s, ev.Address)
	if err != nil {
		return err
	}
	if !ok {
		c = &domain.Campaign{ID: ev.Address}
	}
	c.Owner = dist.Owner
	c.StartsAt = p.StartingTimestamp
	c.EndsAt = p.EndingTimestamp
	c.Duration = p.EndingTimestamp - p.StartingTimestamp
	c.Locked = p.Locked
	c.Market = fpmm

	c.RewardTokens = make([]string, 0, len(p.RewardsTokenAddresses))
	for _, addr := range p.RewardsTokenAddresses {
		t, err := d.requireToken(s, addr, true)
		if err != nil {
			return err
		}
		c.RewardTokens = append(c.RewardTokens, t.ID)
	}
	c.RewardAmounts = fixedpoint.CloneAll(p.RewardsAmounts)
	c.StakedAmount = new(big.Int)
	c.Initialized = true
	s.Save(c)
	return nil
}

func (d *Dispatcher) handleDistributionCanceled(s *Session, ev domain.Event) error {
	factory, ok, err := Load[domain.StakingRewardsFactory](s, d.cfg.StakingRewardsFactory)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelError, "factory must be initialized when canceling a distribution")
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	factory.InitializedCampaignsCount--
	s.Save(factory)
	c.Initialized = false
	s.Save(c)
	return nil
}

func loadCampaign(s *Session, id string) (*domain.Campaign, error) {
	c, ok, err := Load[domain.Campaign](s, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, skip(slog.LevelError, "could not get campaign for address", slog.String("campaign", id))
	}
	return c, nil
}

func (d *Dispatcher) handleStaked(s *Session, ev domain.Event) error {
	p, err := payload[domain.Staked](ev)
	if err != nil {
		return err
	}
	if err := requireAmounts(ev, p.Amount); err != nil {
		return err
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	c.StakedAmount = new(big.Int).Add(c.StakedAmount, p.Amount)
	s.Save(c)
	s.Save(&domain.LMDeposit{
		ID:        ev.TxHash,
		Campaign:  c.ID,
		User:      strings.ToLower(p.Staker),
		Amount:    fixedpoint.Clone(p.Amount),
		Timestamp: ev.BlockTimestamp,
	})
	return nil
}

func (d *Dispatcher) handleWithdrawn(s *Session, ev domain.Event) error {
	p, err := payload[domain.Withdrawn](ev)
	if err != nil {
		return err
	}
	if err := requireAmounts(ev, p.Amount); err != nil {
		return err
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	c.StakedAmount = new(big.Int).Sub(c.StakedAmount, p.Amount)
	s.Save(c)
	s.Save(&domain.LMWithdrawal{
		ID:        ev.TxHash,
		Campaign:  c.ID,
		User:      strings.ToLower(p.Withdrawer),
		Amount:    fixedpoint.Clone(p.Amount),
		Timestamp: ev.BlockTimestamp,
	})
	return nil
}

func (d *Dispatcher) handleClaimed(s *Session, ev domain.Event) error {
	p, err := payload[domain.Claimed](ev)
	if err != nil {
		return err
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	s.Save(&domain.LMClaim{
		ID:        ev.TxHash,
		Campaign:  c.ID,
		User:      strings.ToLower(p.Claimer),
		Amounts:   rewardAmounts(c, p.Amounts),
		Timestamp: ev.BlockTimestamp,
	})
	return nil
}

func (d *Dispatcher) handleRecovered(s *Session, ev domain.Event) error {
	p, err := payload[domain.Recovered](ev)
	if err != nil {
		return err
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	s.Save(&domain.LMRecovery{
		ID:        ev.TxHash,
		Campaign:  c.ID,
		Amounts:   rewardAmounts(c, p.Amounts),
		Timestamp: ev.BlockTimestamp,
	})
	return nil
}

func (d *Dispatcher) handleUpdatedRewards(s *Session, ev domain.Event) error {
	p, err := payload[domain.UpdatedRewards](ev)
	if err != nil {
		return err
	}
	c, err := loadCampaign(s, ev.Address)
	if err != nil {
		return err
	}
	c.RewardAmounts = fixedpoint.CloneAll(p.Amounts)
	s.Save(c)
	return nil
}

// rewardAmounts keeps one amount per campaign reward token.
func rewardAmounts(c *domain.Campaign, amounts []*big.Int) []*big.Int {
	n := min(len(c.RewardTokens), len(amounts))
	return fixedpoint.CloneAll(amounts[:n])
}

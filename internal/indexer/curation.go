package indexer

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/gtcr"
)

func (d *Dispatcher) handleAddToken(s *Session, ev domain.Event) error {
	return d.setDxDaoCuration(s, ev, true)
}

func (d *Dispatcher) handleRemoveToken(s *Session, ev domain.Event) error {
	return d.setDxDaoCuration(s, ev, false)
}

// setDxDaoCuration flips curatedByDxDao for markets on the configured
// registry list. Other lists are ignored.
func (d *Dispatcher) setDxDaoCuration(s *Session, ev domain.Event, curated bool) error {
	p, err := payload[domain.CurationListChange](ev)
	if err != nil {
		return err
	}
	if p.ListID == nil || !p.ListID.IsInt64() || p.ListID.Int64() != d.cfg.CurationListID {
		return nil
	}
	id := strings.ToLower(p.Token)
	m, ok, err := Load[domain.Market](s, id)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelWarn, "could not update dxdao curation of market", slog.String("fpmm", id))
	}
	m.CuratedByDxDao = curated
	m.RecomputeCuration()
	s.Save(m)
	return nil
}

// handleItemStatusChange reads the item from the TCR, finds the market its
// link column points at and mirrors the item status onto it.
func (d *Dispatcher) handleItemStatusChange(s *Session, ev domain.Event) error {
	p, err := payload[domain.ItemStatusChange](ev)
	if err != nil {
		return err
	}
	itemID := strings.ToLower(p.ItemID)
	data, status, err := d.reader.GetItemInfo(s.ctx, ev.Address, itemID, ev.BlockNumber)
	if err != nil && !errors.Is(err, domain.ErrReverted) {
		return err
	}
	if err != nil {
		return skip(slog.LevelError, "could not read tcr item",
			slog.String("item", itemID), slog.String("error", err.Error()))
	}
	fields, err := gtcr.Decode(gtcr.MarketColumns, data)
	if err != nil {
		return skip(slog.LevelWarn, "invalid tcr submission",
			slog.String("item", itemID), slog.String("error", err.Error()))
	}
	addr, ok := gtcr.MarketAddress(fields[1])
	if !ok {
		return skip(slog.LevelWarn, "tcr submission has no market address", slog.String("item", itemID))
	}

	m, ok, err := Load[domain.Market](s, addr)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelWarn, "tcr submission points at unknown market",
			slog.String("item", itemID), slog.String("fpmm", addr))
	}
	m.KlerosTCRStatus = status
	m.KlerosTCRRegistered = status.Accepted()
	m.SubmissionIDs = appendUnique(m.SubmissionIDs, itemID)
	m.RecomputeCuration()
	s.Save(m)
	return nil
}

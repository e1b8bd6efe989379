// Package levels derives executable price levels for a decision: the
// entry reference with its slippage band, and the protective stop and
// target prices.
package levels

import (
	"trading-decision-engine/internal/domain"
)

// EntryConfig controls how the entry reference price is derived.
type EntryConfig struct {
	// UseVWAP prefers the session VWAP over the last bar's typical price
	// when the window carries usable volume.
	UseVWAP bool `json:"use_vwap"`
	// Beta is the band half-width as a fraction of the reference price.
	Beta float64 `json:"beta"`
	// Window caps how many trailing bars feed the reference. Zero means
	// the whole input window. A long trend makes a full-history VWAP lag
	// far below current prices, so keep this short.
	Window int `json:"window"`
}

// DefaultEntryConfig returns the entry settings used when none are configured.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		UseVWAP: true,
		Beta:    0.002,
		Window:  10,
	}
}

// EntryBand is the reference entry price with its acceptable slippage band.
// The band communicates tolerance around Entry, not a second price.
type EntryBand struct {
	Entry    float64     `json:"entry"`
	Band     domain.Band `json:"band"`
	UsedVWAP bool        `json:"used_vwap"`
}

// EntryEngine computes the entry reference and band from a recent OHLCV window.
type EntryEngine struct {
	cfg EntryConfig
}

// NewEntryEngine creates an entry engine with the given configuration.
func NewEntryEngine(cfg EntryConfig) *EntryEngine {
	return &EntryEngine{cfg: cfg}
}

// minEntryBars is the smallest window Compute accepts.
const minEntryBars = 2

// Compute derives the entry reference from the window: session VWAP when
// configured and the window has non-degenerate volume, otherwise the typical
// price of the most recent bar. The band spans reference × (1 ± beta).
func (e *EntryEngine) Compute(bars []domain.Bar) (EntryBand, error) {
	if len(bars) < minEntryBars {
		return EntryBand{}, &domain.InsufficientDataError{
			Required: minEntryBars,
			Got:      len(bars),
			Subject:  "entry band window",
		}
	}
	if e.cfg.Beta < 0 || e.cfg.Beta >= 1 {
		return EntryBand{}, &domain.InvalidConfigurationError{
			Field:  "beta",
			Value:  e.cfg.Beta,
			Reason: "band half-width must be in [0, 1)",
		}
	}
	if e.cfg.Window < 0 || e.cfg.Window == 1 {
		return EntryBand{}, &domain.InvalidConfigurationError{
			Field:  "window",
			Value:  e.cfg.Window,
			Reason: "must be 0 (whole window) or at least 2",
		}
	}
	if e.cfg.Window >= minEntryBars && len(bars) > e.cfg.Window {
		bars = bars[len(bars)-e.cfg.Window:]
	}

	reference, usedVWAP := e.referencePrice(bars)

	return EntryBand{
		Entry: reference,
		Band: domain.Band{
			Low:  reference * (1 - e.cfg.Beta),
			High: reference * (1 + e.cfg.Beta),
		},
		UsedVWAP: usedVWAP,
	}, nil
}

// referencePrice picks VWAP when volume supports it, falling back to the
// last bar's typical price.
func (e *EntryEngine) referencePrice(bars []domain.Bar) (float64, bool) {
	if e.cfg.UseVWAP {
		var priceVolume, volume float64
		for _, bar := range bars {
			priceVolume += bar.TypicalPrice() * bar.Volume
			volume += bar.Volume
		}
		if volume > 0 {
			return priceVolume / volume, true
		}
	}
	return bars[len(bars)-1].TypicalPrice(), false
}

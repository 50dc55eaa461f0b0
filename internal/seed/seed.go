// Package seed loads the market catalog created at node startup.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

// Catalog is the decoded seed file.
type Catalog struct {
	Markets []Market `toml:"market"`
}

// Market is one seeded market. Exactly one of ClosesAt and ClosesIn is set;
// ClosesIn is relative to load time.
type Market struct {
	ID               string    `toml:"id"`
	Title            string    `toml:"title"`
	Description      string    `toml:"description"`
	Category         string    `toml:"category"`
	Outcomes         []string  `toml:"outcomes"`
	Liquidity        float64   `toml:"liquidity"`
	ClosesAt         time.Time `toml:"closes_at"`
	ClosesIn         duration  `toml:"closes_in"`
	ResolvesIn       duration  `toml:"resolves_in"`
	ResolutionSource string    `toml:"resolution_source"`
	Sponsor          string    `toml:"sponsor"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Creator opens markets.
type Creator interface {
	CreateMarket(ctx context.Context, spec model.MarketSpec) (string, error)
}

// Load decodes the catalog at path.
func Load(path string) (Catalog, error) {
	var c Catalog
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Catalog{}, fmt.Errorf("seed file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return c, nil
}

// Specs converts the catalog into market specs anchored at now.
func (c Catalog) Specs(now time.Time) ([]model.MarketSpec, error) {
	specs := make([]model.MarketSpec, 0, len(c.Markets))
	for i, m := range c.Markets {
		closesAt := m.ClosesAt
		switch {
		case !closesAt.IsZero() && m.ClosesIn.Duration != 0:
			return nil, fmt.Errorf("seed market %d (%s): closes_at and closes_in are exclusive", i, m.ID)
		case closesAt.IsZero() && m.ClosesIn.Duration <= 0:
			return nil, fmt.Errorf("seed market %d (%s): closes_at or a positive closes_in is required", i, m.ID)
		case closesAt.IsZero():
			closesAt = now.Add(m.ClosesIn.Duration)
		}
		var resolvesAt time.Time
		if m.ResolvesIn.Duration > 0 {
			resolvesAt = closesAt.Add(m.ResolvesIn.Duration)
		}
		specs = append(specs, model.MarketSpec{
			ID:               m.ID,
			Title:            m.Title,
			Description:      m.Description,
			Category:         m.Category,
			Outcomes:         m.Outcomes,
			Liquidity:        m.Liquidity,
			ClosesAt:         closesAt,
			ResolvesAt:       resolvesAt,
			ResolutionSource: m.ResolutionSource,
			Sponsor:          model.Address(m.Sponsor),
		})
	}
	return specs, nil
}

// Apply creates every market of the catalog in file order and returns their ids.
func Apply(ctx context.Context, creator Creator, c Catalog, now time.Time) ([]string, error) {
	specs, err := c.Specs(now)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id, err := creator.CreateMarket(ctx, spec)
		if err != nil {
			return ids, fmt.Errorf("seed market %q: %w", spec.Title, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

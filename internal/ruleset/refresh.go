package ruleset

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// refreshTimeout bounds one scheduled reload.
const refreshTimeout = 30 * time.Second

// Refresh reloads the active rule set from the store. The cache is only
// replaced once the new snapshot compiles; on error the previous snapshots
// keep serving.
func (p *Provider) Refresh(ctx context.Context) (*RuleSet, error) {
	rs, err := p.load(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("ruleset.Provider.Refresh: %w", err)
	}
	p.cache.Purge()
	p.cache.Add(activeKey, rs)
	p.cache.Add(rs.Version, rs)
	return rs, nil
}

// ScheduleRefresh reloads the active rule set on a cron schedule such as
// "@every 5m". The returned Cron is already started; stop it on shutdown.
func (p *Provider) ScheduleRefresh(spec string, log zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		rs, err := p.Refresh(ctx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled rule-set refresh failed")
			return
		}
		log.Debug().Str("rule_set", rs.Version).Str("digest", rs.Digest).Msg("rule set refreshed")
	})
	if err != nil {
		return nil, fmt.Errorf("ruleset.ScheduleRefresh: invalid schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

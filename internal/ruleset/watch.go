package ruleset

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchSettle is how long the directory must stay quiet before a reload.
// Editors and copy tools usually emit several events per save.
const watchSettle = 250 * time.Millisecond

// Watch reloads the active rule set whenever a definition file in dir is
// written, created, removed or renamed. It blocks until ctx is done.
func (p *Provider) Watch(ctx context.Context, dir string, log zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ruleset.Watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("ruleset.Watch: %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("watching rule-set directory")

	timer := time.NewTimer(watchSettle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != definitionExt {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("rule-set file changed")
			timer.Reset(watchSettle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("rule-set watcher error")
		case <-timer.C:
			rs, err := p.Refresh(ctx)
			if err != nil {
				log.Error().Err(err).Msg("rule-set reload failed, keeping previous version")
				continue
			}
			log.Info().Str("rule_set", rs.Version).Str("digest", rs.Digest).Msg("rule set reloaded")
		}
	}
}

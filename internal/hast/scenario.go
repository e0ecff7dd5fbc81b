package hast

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/hass/internal/yamllog"
)

// playScenario streams every document in cfg.scenario as a single burst,
// each one ID-rewritten to subscriptionID, in file order — no pacing, no
// use of a document's own time_fired for scheduling. A malformed
// document is logged and skipped; a missing scenario file is logged and
// the subscription simply never produces any events.
func (c *conn) playScenario(cfg connConfig, subscriptionID uint64) {
	if cfg.scenario == "" {
		c.logger.Warn("subscribe_events with no scenario configured")
		return
	}

	path := filepath.Join(cfg.yamlDir, cfg.scenario)
	f, err := os.Open(path)
	if err != nil {
		c.logger.Warn("scenario file not found", "path", path, "err", err)
		return
	}
	defer f.Close()

	r := yamllog.NewReader(f)
	for {
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			c.logger.Warn("malformed scenario document, skipping", "path", path, "err", err)
			continue
		}

		if !c.outbox.TrySend(msg.SetID(subscriptionID), c.sub.Done()) {
			return
		}
	}
}

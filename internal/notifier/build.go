package notifier

import (
	"fmt"

	"pairwatch/config"
	"pairwatch/logger"
)

// Build assembles the configured notifier chain: the log notifier always
// records the message, SMTP delivers it when enabled, and the whole chain is
// rate limited.
func Build(cfg config.NotifierConfig) (Notifier, error) {
	var chain Notifier = NewLogNotifier()
	if cfg.SMTP.Enabled {
		mail, err := NewSMTPNotifier(cfg.SMTP, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("smtp notifier: %w", err)
		}
		chain = NewMulti(chain, mail)
	}

	logger.GetLogger().WithComponent("notifier").WithFields(logger.Fields{
		"chain":          chain.Name(),
		"rate_per_min":   cfg.RateLimit.PerMinute,
		"rate_per_burst": cfg.RateLimit.Burst,
	}).Info("notifier configured")

	return NewThrottled(chain, cfg.RateLimit.PerMinute, cfg.RateLimit.Burst), nil
}

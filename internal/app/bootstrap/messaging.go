package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/multiplay-assistant/internal/config"
	"github.com/wolfman30/multiplay-assistant/internal/messaging/ultramsg"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// BuildMessenger creates the UltraMsg gateway client from config.
func BuildMessenger(cfg *appconfig.Config, logger *logging.Logger) (*ultramsg.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	client, err := ultramsg.New(ultramsg.Config{
		BaseURL:       cfg.UltraMsgBaseURL,
		Instance:      cfg.UltraMsgInstance,
		Token:         cfg.UltraMsgToken,
		Timeout:       cfg.GatewayTimeout,
		RatePerSecond: cfg.GatewayRatePerSecond,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: ultramsg client: %w", err)
	}
	return client, nil
}

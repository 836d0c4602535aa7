// internal/workers/payments/provider-webhook/config.go
package providerwebhook

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

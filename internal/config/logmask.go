// SPDX-License-Identifier: MIT

package config

import "net/url"

// maskURL strips credentials, query and path from a URL for logging.
func maskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***redacted***"
	}
	return u.Scheme + "://" + u.Host
}

// MaskSecrets returns a copy of cfg with passwords replaced, for logging and
// the API.
func MaskSecrets(cfg AppConfig) AppConfig {
	if cfg.Receiver.Password != "" {
		cfg.Receiver.Password = "***"
	}
	if cfg.Cache.RedisPassword != "" {
		cfg.Cache.RedisPassword = "***"
	}
	cfg.Receiver.BaseURL = maskURL(cfg.Receiver.BaseURL)
	return cfg
}

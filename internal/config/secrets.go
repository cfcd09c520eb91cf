package config

import (
	"os"

	"github.com/tdnguyen/mailsift/internal/credential"
)

// Keyring keys for secrets that are not supplied via environment.
const (
	keyIMAPPassword    = "imap-password"
	keyClassifierToken = "classifier-token"
	keyWebhookToken    = "webhook-token"
	keyRedisPassword   = "redis-password"
)

// resolveSecrets fills the secret fields from the environment first
// and the system keyring second. Absent secrets stay empty; Validate
// decides which ones are fatal.
func resolveSecrets(cfg *Config) {
	cfg.IMAP.Password = secret("MAILSIFT_IMAP_PASSWORD", keyIMAPPassword)
	cfg.Classifier.Token = secret("MAILSIFT_CLASSIFIER_TOKEN", keyClassifierToken)
	cfg.Notify.WebhookToken = secret("MAILSIFT_WEBHOOK_TOKEN", keyWebhookToken)
	cfg.Notify.RedisPassword = secret("MAILSIFT_REDIS_PASSWORD", keyRedisPassword)
}

func secret(envName, keyringKey string) string {
	if val := os.Getenv(envName); val != "" {
		return val
	}
	val, err := credential.Get(keyringKey)
	if err != nil {
		return ""
	}
	return val
}

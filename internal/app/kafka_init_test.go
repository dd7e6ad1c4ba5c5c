package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConnectKafka_DisabledWithoutBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, raw := range []string{"", " ", " , ,"} {
		cfg := DefaultConfig()
		cfg.KafkaBrokers = raw

		producer, release, err := connectKafka(cfg, logger)
		require.NoError(t, err, "brokers %q", raw)
		require.Nil(t, producer, "brokers %q", raw)
		require.NotPanics(t, release)
	}
}

func TestConnectKafka_UnreachableBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = "invalid-broker:9999"

	producer, release, err := connectKafka(cfg, log.WithField("test", "kafka"))
	require.ErrorContains(t, err, "connect kafka invalid-broker:9999")
	require.Nil(t, producer)
	require.NotPanics(t, release)
}

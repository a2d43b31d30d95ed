package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/config"
)

func TestNewConsumer_Validation(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Feed
		errorMsg string
	}{
		{"missing brokers", config.Feed{Topic: "t", ConsumerGroup: "g"}, "brokers"},
		{"missing topic", config.Feed{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}, "topic"},
		{"bad sasl", config.Feed{
			Brokers: []string{"localhost:9092"}, Topic: "t", ConsumerGroup: "g",
			SASLUsername: "u", SASLPassword: "p", SASLMechanism: "GSSAPI",
		}, "unsupported SASL mechanism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConsumer(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestNewConsumer_DoesNotDial(t *testing.T) {
	c, err := NewConsumer(config.Feed{
		Brokers:       []string{"localhost:1"},
		Topic:         "arbor-index",
		ConsumerGroup: "arbor-master",
		SASLUsername:  "u",
		SASLPassword:  "p",
		SASLMechanism: "SCRAM-SHA-256",
	})
	require.NoError(t, err)
	c.Close()
}

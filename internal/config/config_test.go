package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()

	assert.Equal(t, "kafka", viper.GetString("broker.driver"))
	assert.Equal(t, 100, viper.GetInt("outbox.batch_size"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("outbox.poll_interval"))
	assert.Equal(t, time.Minute, viper.GetDuration("outbox.stuck_after"))
	assert.Equal(t, 7*24*time.Hour, viper.GetDuration("housekeeping.retention"))
	assert.Equal(t, 3*time.Second, viper.GetDuration("inventory.timeout"))
	assert.Equal(t, "order.events", viper.GetString("kafka.topics.orders"))
	assert.Equal(t, []string{"kafka:9092"}, viper.GetStringSlice("kafka.brokers"))
}

func TestSetDefaults_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("ORDER_OUTBOX_BATCH_SIZE", "25")

	SetDefaults()
	viper.SetEnvPrefix("ORDER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	assert.Equal(t, 25, viper.GetInt("outbox.batch_size"))
}

package config

import (
	"reflect"
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a", want: []string{"a"}},
		{in: " a , b ,, c ", want: []string{"a", "b", "c"}},
		{in: ",,", want: nil},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_DURATION", "1500ms")
	t.Setenv("TEST_BOOL", "true")

	if v := getEnvInt("TEST_INT"); v != 42 {
		t.Errorf("getEnvInt() = %d; want 42", v)
	}
	if v := getEnvInt("TEST_BAD_INT"); v != 0 {
		t.Errorf("getEnvInt(bad) = %d; want 0", v)
	}
	if v := getEnvDuration("TEST_DURATION"); v != 1500*time.Millisecond {
		t.Errorf("getEnvDuration() = %v; want 1.5s", v)
	}
	if !getEnvBool("TEST_BOOL") {
		t.Error("getEnvBool() = false; want true")
	}
}

func TestLoadRedisFromEnv_EmptyKeyPrefix(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("REDIS_KEY_PREFIX", "")

	cfg := defaultRedisConfig()
	loadRedisFromEnv(&cfg)

	if cfg.KeyPrefix != "" {
		t.Errorf("KeyPrefix = %q; want empty when set to empty", cfg.KeyPrefix)
	}
}

func TestLoadMQTTFromEnv_QoSRange(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("MQTT_QOS", "7")

	cfg := defaultMQTTConfig()
	loadMQTTFromEnv(&cfg)

	if cfg.QoS != 0 {
		t.Errorf("QoS = %d; want default 0 for out of range value", cfg.QoS)
	}
}

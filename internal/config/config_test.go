package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/mroth/pushserver"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	want := Config{
		Addr:          ":8080",
		SessionGrace:  2 * time.Minute,
		SweepInterval: 15 * time.Second,
		MaxQueue:      256,
		PushTimeout:   5 * time.Second,
		Keepalive:     15 * time.Second,
		Admin:         true,
	}
	cfg.Topics = nil
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("got %+v want %+v", cfg, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PUSH_ADDR", "127.0.0.1:9000")
	t.Setenv("PUSH_SESSION_GRACE", "30s")
	t.Setenv("PUSH_MAX_QUEUE", "10")
	t.Setenv("PUSH_TOPICS", "news;cats@pets")
	t.Setenv("PUSH_ADMIN", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Addr, "127.0.0.1:9000"; got != want {
		t.Errorf("Addr: got %v want %v", got, want)
	}
	if got, want := cfg.SessionGrace, 30*time.Second; got != want {
		t.Errorf("SessionGrace: got %v want %v", got, want)
	}
	if got, want := cfg.MaxQueue, 10; got != want {
		t.Errorf("MaxQueue: got %v want %v", got, want)
	}
	if cfg.Admin {
		t.Errorf("Admin: got true want false")
	}

	keys, err := cfg.TopicKeys()
	if err != nil {
		t.Fatal(err)
	}
	want := []pushserver.TopicKey{
		{Name: "news"},
		{Name: "pets", Subtopic: "cats"},
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("TopicKeys: got %v want %v", keys, want)
	}
}

func TestLoadInvalid(t *testing.T) {
	var testcases = []struct {
		name  string
		key   string
		value string
	}{
		{"negative queue", "PUSH_MAX_QUEUE", "-1"},
		{"negative grace", "PUSH_SESSION_GRACE", "-5s"},
		{"zero timeout", "PUSH_TIMEOUT", "0s"},
		{"bad topic", "PUSH_TOPICS", "a@b@c"},
		{"unparsable duration", "PUSH_KEEPALIVE", "soon"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("%v=%v: expected error", tc.key, tc.value)
			}
		})
	}
}

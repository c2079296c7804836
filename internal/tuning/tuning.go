// Package tuning loads pipeline.yaml plus environment overrides.
package tuning

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// Readiness gate. ready_for_build requires build_capability at or above
	// this and an empty blocking list.
	ReadyBuildCapability int `yaml:"ready_build_capability"`
	// Capability at or above this authorises manifestation stage 2.
	StageTwoCapability int `yaml:"stage_two_capability"`
	// Lifetime of a manifestation intent.
	IntentTTLMinutes int `yaml:"intent_ttl_minutes"`

	AI   AI   `yaml:"ai"`
	RCON RCON `yaml:"rcon"`

	// Sleep between empty build-queue polls; the drain loop backs off from
	// this value when the queue stays empty.
	QueueDrainSeconds int `yaml:"queue_drain_seconds"`

	// Archival sanitisation rule file for CityPhone narrative lines.
	ArchivalRulesPath string `yaml:"archival_rules_path"`

	// Rotate the patch transaction log into a zstd archive once the live
	// file reaches this size. Zero keeps the default.
	TxlogArchiveMB int `yaml:"txlog_archive_mb"`

	// Auto-execute validated templates through the command runner.
	AutoExecute bool `yaml:"auto_execute"`
}

type AI struct {
	Disable           bool   `yaml:"disable"`
	Model             string `yaml:"model"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	ReadTimeoutSec    int    `yaml:"read_timeout_sec"`
}

type RCON struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Password   string `yaml:"password"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Default returns the built-in tuning used when no pipeline.yaml exists.
func Default() Tuning {
	return Tuning{
		ReadyBuildCapability: 85,
		StageTwoCapability:   120,
		IntentTTLMinutes:     30,
		AI: AI{
			Model:             "claude-haiku-4-5",
			ConnectTimeoutSec: 6,
			ReadTimeoutSec:    6,
		},
		RCON: RCON{
			Host:       "127.0.0.1",
			Port:       25575,
			TimeoutSec: 5,
		},
		QueueDrainSeconds: 5,
		ArchivalRulesPath: "configs/archival_rules.yaml",
		TxlogArchiveMB:    8,
	}
}

// Load reads pipeline.yaml, fills unset values with defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Tuning, error) {
	t := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &t); err != nil {
				return t, fmt.Errorf("pipeline.yaml: %w", err)
			}
		case !os.IsNotExist(err):
			return t, err
		}
	}
	t.applyEnv()
	if t.ReadyBuildCapability <= 0 {
		t.ReadyBuildCapability = 85
	}
	if t.StageTwoCapability <= 0 {
		t.StageTwoCapability = 120
	}
	if t.IntentTTLMinutes <= 0 {
		t.IntentTTLMinutes = 30
	}
	if t.TxlogArchiveMB <= 0 {
		t.TxlogArchiveMB = 8
	}
	return t, nil
}

func (t *Tuning) applyEnv() {
	if v := os.Getenv("IDEAL_CITY_AI_DISABLE"); v != "" {
		t.AI.Disable = v == "1" || v == "true"
	}
	if n, ok := envInt("IDEAL_CITY_AI_CONNECT_TIMEOUT"); ok {
		t.AI.ConnectTimeoutSec = n
	}
	if n, ok := envInt("IDEAL_CITY_AI_READ_TIMEOUT"); ok {
		t.AI.ReadTimeoutSec = n
	}
	if v := os.Getenv("MINECRAFT_RCON_HOST"); v != "" {
		t.RCON.Host = v
	}
	if n, ok := envInt("MINECRAFT_RCON_PORT"); ok {
		t.RCON.Port = n
	}
	if v := os.Getenv("MINECRAFT_RCON_PASSWORD"); v != "" {
		t.RCON.Password = v
	}
	if n, ok := envInt("MINECRAFT_RCON_TIMEOUT"); ok {
		t.RCON.TimeoutSec = n
	}
	if v := os.Getenv("DRIFT_CREATION_AUTO_EXEC"); v != "" {
		t.AutoExecute = v == "1" || v == "true"
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Roots resolves data/protocol/mods directories, env over flag defaults.
type Roots struct {
	Data     string
	Protocol string
	Mods     string
}

func ResolveRoots(dataFlag, protocolFlag, modsFlag string) Roots {
	r := Roots{Data: dataFlag, Protocol: protocolFlag, Mods: modsFlag}
	if v := os.Getenv("IDEAL_CITY_DATA_ROOT"); v != "" {
		r.Data = v
	}
	if v := os.Getenv("IDEAL_CITY_PROTOCOL_ROOT"); v != "" {
		r.Protocol = v
	}
	if v := os.Getenv("IDEAL_CITY_MODS_ROOT"); v != "" {
		r.Mods = v
	}
	return r
}

func (t Tuning) AIConnectTimeout() time.Duration {
	return time.Duration(t.AI.ConnectTimeoutSec) * time.Second
}

func (t Tuning) AIReadTimeout() time.Duration {
	return time.Duration(t.AI.ReadTimeoutSec) * time.Second
}

func (t Tuning) RCONTimeout() time.Duration {
	return time.Duration(t.RCON.TimeoutSec) * time.Second
}

func (t Tuning) IntentTTL() time.Duration {
	return time.Duration(t.IntentTTLMinutes) * time.Minute
}

func (t Tuning) TxlogArchiveBytes() int64 {
	return int64(t.TxlogArchiveMB) * 1024 * 1024
}

package nodeconfig

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"strings"

	"rustchain-node/logging"
	"rustchain-node/types"
)

type Config struct {
	Api         ApiConfig         `koanf:"api"`
	Chain       ChainConfig       `koanf:"chain"`
	Attestation AttestationConfig `koanf:"attestation"`
	Anchor      AnchorConfig      `koanf:"anchor"`
	State       StateConfig       `koanf:"state"`
}

type ApiConfig struct {
	PublicPort int    `koanf:"public_port"`
	AdminPort  int    `koanf:"admin_port"`
	AdminKey   string `koanf:"admin_key"`
}

type ChainConfig struct {
	ChainId          string `koanf:"chain_id"`
	GenesisTimestamp int64  `koanf:"genesis_timestamp"`
	SlotSeconds      int64  `koanf:"slot_seconds"`
	SlotsPerEpoch    int64  `koanf:"slots_per_epoch"`
	// Decimal RTC strings; parsed into uRTC once at startup.
	EpochPotRtc    string `koanf:"epoch_pot_rtc"`
	EmissionCapRtc string `koanf:"emission_cap_rtc"`
}

type AttestationConfig struct {
	// Composite-score threshold below which a sample is rejected outright.
	AdmissionThreshold string `koanf:"admission_threshold"`
	// EWMA weight of the newest sample when updating a device's running trust.
	TrustAlpha string `koanf:"trust_alpha"`
	// Running-trust level below which a device is suspended from voting.
	SuspendThreshold    string `koanf:"suspend_threshold"`
	ChallengeTtlSeconds int64  `koanf:"challenge_ttl_seconds"`
	RebindGraceEpochs   uint64 `koanf:"rebind_grace_epochs"`
	MaxBindingsPerClass int    `koanf:"max_bindings_per_class"`
	QueueLateVotes      bool   `koanf:"queue_late_votes"`
}

type AnchorConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Url             string `koanf:"url"`
	IntervalSeconds int64  `koanf:"interval_seconds"`
	MaxAttempts     int    `koanf:"max_attempts"`
}

type StateConfig struct {
	LedgerPath   string `koanf:"ledger_path"`
	RegistryPath string `koanf:"registry_path"`
}

// DefaultConfig mirrors the reference deployment: 144 slots of 600s per epoch,
// a 1.5 RTC pot, and the emission cap equal to the pot.
func DefaultConfig() Config {
	return Config{
		Api: ApiConfig{
			PublicPort: 8099,
			AdminPort:  8199,
		},
		Chain: ChainConfig{
			ChainId:          "rustchain-mainnet-v2",
			GenesisTimestamp: 1764706927,
			SlotSeconds:      600,
			SlotsPerEpoch:    144,
			EpochPotRtc:      "1.5",
			EmissionCapRtc:   "1.5",
		},
		Attestation: AttestationConfig{
			AdmissionThreshold:  "0.999999999",
			TrustAlpha:          "0.2",
			SuspendThreshold:    "0.999999999",
			ChallengeTtlSeconds: 300,
			RebindGraceEpochs:   14,
			MaxBindingsPerClass: 1,
			QueueLateVotes:      true,
		},
		Anchor: AnchorConfig{
			Enabled:         false,
			IntervalSeconds: 3600,
			MaxAttempts:     5,
		},
		State: StateConfig{
			LedgerPath:   "rustchain_ledger.json",
			RegistryPath: "rustchain_registry.json",
		},
	}
}

// ReadConfig layers the config file (if any) and RUSTCHAIN_* env vars over defaults.
func ReadConfig() (Config, error) {
	configPath := os.Getenv("RUSTCHAIN_CONFIG_PATH")
	if configPath == "" {
		logging.Info("RUSTCHAIN_CONFIG_PATH not set, using default config.yaml", types.Config)
		configPath = "config.yaml"
	}
	return readConfig(configPath)
}

func readConfig(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, err
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, err
		}
	} else {
		logging.Warn("config file not found, running on defaults", types.Config, "path", configPath)
	}

	err := k.Load(env.Provider("RUSTCHAIN_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "RUSTCHAIN_")), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

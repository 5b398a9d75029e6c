package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"
	"github.com/spf13/viper"

	"popfork/consensus"
	"popfork/core"
	"popfork/errors"
	"popfork/network"
)

// EnvPrefix prefixes environment overrides, e.g. POPNODE_LOGGING_LEVEL.
const EnvPrefix = "POPNODE"

const (
	StorageMemory = "memory"
	StorageBolt   = "bolt"
)

type Config struct {
	Chain   Chain   `toml:"chain" mapstructure:"chain"`
	Pop     Pop     `toml:"pop" mapstructure:"pop"`
	P2P     P2P     `toml:"p2p" mapstructure:"p2p"`
	Sync    Sync    `toml:"sync" mapstructure:"sync"`
	Storage Storage `toml:"storage" mapstructure:"storage"`
	Logging Logging `toml:"logging" mapstructure:"logging"`
}

type Chain struct {
	Name          string `toml:"name" mapstructure:"name" validate:"required"`
	GenesisTime   uint32 `toml:"genesis-time" mapstructure:"genesis-time"`
	MaxReorgDepth int    `toml:"max-reorg-depth" mapstructure:"max-reorg-depth" validate:"gte=0"`
}

type Pop struct {
	Identifier         int64  `toml:"identifier" mapstructure:"identifier" validate:"required"`
	SettlementInterval uint32 `toml:"settlement-interval" mapstructure:"settlement-interval" validate:"gte=1"`
	EndorsementWindow  uint32 `toml:"endorsement-window" mapstructure:"endorsement-window" validate:"gte=1"`
	MaxVbkBlocks       int    `toml:"max-vbk-blocks" mapstructure:"max-vbk-blocks" validate:"gte=1"`
	MaxVTBs            int    `toml:"max-vtbs" mapstructure:"max-vtbs" validate:"gte=1"`
	MaxATVs            int    `toml:"max-atvs" mapstructure:"max-atvs" validate:"gte=1"`
}

type P2P struct {
	MaxHeaders                int    `toml:"max-headers" mapstructure:"max-headers" validate:"gte=1,lte=2000"`
	MaxPopDataSendingAmount   int    `toml:"max-pop-data-sending-amount" mapstructure:"max-pop-data-sending-amount" validate:"gte=1"`
	MaxPopMessageSendingCount uint32 `toml:"max-pop-message-sending-count" mapstructure:"max-pop-message-sending-count" validate:"gte=1"`
	BanScore                  int    `toml:"ban-score" mapstructure:"ban-score" validate:"gte=1"`
}

type Sync struct {
	Interval string `toml:"interval" mapstructure:"interval" validate:"required"`
	Timeout  string `toml:"timeout" mapstructure:"timeout" validate:"required"`
	Flush    bool   `toml:"flush" mapstructure:"flush"`
}

type Storage struct {
	Type string `toml:"type" mapstructure:"type" validate:"oneof=memory bolt"`
	// Path holds the bolt block store.
	Path string `toml:"path" mapstructure:"path" validate:"required_if=Type bolt"`
	// PayloadPath holds the badger payload store. Empty keeps payloads in
	// memory.
	PayloadPath string `toml:"payload-path" mapstructure:"payload-path"`
}

type Logging struct {
	Format string `toml:"format" mapstructure:"format" validate:"oneof=text json"`
	Level  string `toml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
}

func DefaultConfig() *Config {
	params := consensus.DefaultPopParams()
	relay := network.DefaultRelayParams()
	sync := core.DefaultSyncOptions()
	return &Config{
		Chain: Chain{
			Name:        "popnode",
			GenesisTime: 1_600_000_000,
		},
		Pop: Pop{
			Identifier:         params.Identifier,
			SettlementInterval: params.SettlementInterval,
			EndorsementWindow:  consensus.DefaultEndorsementWindow,
			MaxVbkBlocks:       params.MaxVbkBlocks,
			MaxVTBs:            params.MaxVTBs,
			MaxATVs:            params.MaxATVs,
		},
		P2P: P2P{
			MaxHeaders:                relay.MaxHeaders,
			MaxPopDataSendingAmount:   relay.MaxPopDataSendingAmount,
			MaxPopMessageSendingCount: relay.MaxPopMessageSendingCount,
			BanScore:                  relay.BanScore,
		},
		Sync: Sync{
			Interval: sync.Interval.String(),
			Timeout:  sync.Timeout.String(),
			Flush:    sync.Flush,
		},
		Storage: Storage{Type: StorageMemory},
		Logging: Logging{Format: "text", Level: "info"},
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.BadRequest.WithFormat("invalid config: %w", err)
	}
	if _, err := c.SyncOptions(); err != nil {
		return err
	}
	return nil
}

func (c *Config) PopParams() consensus.PopParams {
	return consensus.PopParams{
		Identifier:         c.Pop.Identifier,
		SettlementInterval: c.Pop.SettlementInterval,
		MaxVbkBlocks:       c.Pop.MaxVbkBlocks,
		MaxVTBs:            c.Pop.MaxVTBs,
		MaxATVs:            c.Pop.MaxATVs,
	}
}

func (c *Config) ChainConfig() core.ChainConfig {
	return core.ChainConfig{
		Name:          c.Chain.Name,
		GenesisTime:   c.Chain.GenesisTime,
		Pop:           c.PopParams(),
		MaxReorgDepth: c.Chain.MaxReorgDepth,
	}
}

func (c *Config) RelayParams() network.RelayParams {
	p := network.DefaultRelayParams()
	p.MaxHeaders = c.P2P.MaxHeaders
	p.MaxPopDataSendingAmount = c.P2P.MaxPopDataSendingAmount
	p.MaxPopMessageSendingCount = c.P2P.MaxPopMessageSendingCount
	p.BanScore = c.P2P.BanScore
	return p
}

func (c *Config) SyncOptions() (core.SyncOptions, error) {
	interval, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return core.SyncOptions{}, errors.BadRequest.WithFormat("sync interval: %w", err)
	}
	timeout, err := time.ParseDuration(c.Sync.Timeout)
	if err != nil {
		return core.SyncOptions{}, errors.BadRequest.WithFormat("sync timeout: %w", err)
	}
	return core.SyncOptions{Interval: interval, Timeout: timeout, Flush: c.Sync.Flush}, nil
}

// LoadConfig reads a TOML file over the defaults. Environment variables
// named POPNODE_<SECTION>_<KEY> override keys present in the file.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.BadRequest.WithFormat("read %s: %w", file, err)
	}

	c := DefaultConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.BadRequest.WithFormat("unmarshal %s: %w", file, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// StoreConfig writes c as TOML, creating the directory if needed.
func StoreConfig(c *Config, file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return errors.InternalError.WithFormat("create config dir: %w", err)
	}
	f, err := os.Create(file)
	if err != nil {
		return errors.InternalError.WithFormat("create config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return errors.InternalError.WithFormat("encode config: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DetectionModeFixed      = "fixed"
	DetectionModePercentage = "percentage"
)

// DetectionConfig tunes the variation detectors and credit-note recognition.
type DetectionConfig struct {
	Mode          string   `mapstructure:"mode"`
	MinDifference float64  `mapstructure:"minDifference"`
	MinPercentage float64  `mapstructure:"minPercentage"`
	CreditMarkers []string `mapstructure:"creditMarkers"`
	SingleFlight  bool     `mapstructure:"singleFlight"`
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Mode:          DetectionModeFixed,
		MinDifference: 1,
		MinPercentage: 10,
		CreditMarkers: []string{"credit", "kreditnota"},
	}
}

type DetectionConfigHolder struct {
	current atomic.Value // holds DetectionConfig
}

// NewStaticDetectionConfigHolder wraps a fixed config without file watching.
func NewStaticDetectionConfigHolder(cfg DetectionConfig) *DetectionConfigHolder {
	holder := &DetectionConfigHolder{}
	holder.current.Store(normalizeDetectionConfig(cfg))
	return holder
}

func NewDetectionConfigHolder() (*DetectionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("detection")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pricewatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDetectionConfig()
	v.SetDefault("detection.mode", defaults.Mode)
	v.SetDefault("detection.minDifference", defaults.MinDifference)
	v.SetDefault("detection.minPercentage", defaults.MinPercentage)
	v.SetDefault("detection.creditMarkers", defaults.CreditMarkers)
	v.SetDefault("detection.singleFlight", defaults.SingleFlight)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg DetectionConfig
	if err := v.UnmarshalKey("detection", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeDetectionConfig(cfg)
	if err := ValidateDetectionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DetectionConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated DetectionConfig
			if err := v.UnmarshalKey("detection", &updated); err != nil {
				log.Printf("[detection-config] reload failed: %v", err)
				return
			}
			updated = normalizeDetectionConfig(updated)
			if err := ValidateDetectionConfig(updated); err != nil {
				log.Printf("[detection-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[detection-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *DetectionConfigHolder) Get() DetectionConfig {
	return h.current.Load().(DetectionConfig)
}

func ValidateDetectionConfig(cfg DetectionConfig) error {
	switch cfg.Mode {
	case DetectionModeFixed, DetectionModePercentage:
	default:
		return errors.New("detection.mode must be fixed or percentage")
	}
	if cfg.MinDifference < 0 {
		return errors.New("detection.minDifference cannot be negative")
	}
	if cfg.MinPercentage < 0 {
		return errors.New("detection.minPercentage cannot be negative")
	}
	if len(cfg.CreditMarkers) == 0 {
		return errors.New("detection.creditMarkers cannot be empty")
	}
	return nil
}

func normalizeDetectionConfig(cfg DetectionConfig) DetectionConfig {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	markers := make([]string, 0, len(cfg.CreditMarkers))
	for _, marker := range cfg.CreditMarkers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker == "" {
			continue
		}
		markers = append(markers, marker)
	}
	cfg.CreditMarkers = markers
	return cfg
}

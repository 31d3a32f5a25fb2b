package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	BaseURL        string `mapstructure:"BASE"`
	StorageDir     string `mapstructure:"STORAGE_DIR"`
	FFmpegBin      string `mapstructure:"FFMPEG_BIN"`
	FFprobeBin     string `mapstructure:"FFPROBE_BIN"`
	YtdlpBin       string `mapstructure:"YTDLP_BIN"`
	YtdlpExtraArgs string `mapstructure:"YTDLP_EXTRA_ARGS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	MaxUploadSize  int64 `mapstructure:"MAX_UPLOAD_SIZE"`
	MaxConcurrency int   `mapstructure:"MAX_CONCURRENCY"`
	QueueSize      int   `mapstructure:"QUEUE_SIZE"`

	ProbeTimeout      time.Duration `mapstructure:"PROBE_TIMEOUT"`
	InfoTimeout       time.Duration `mapstructure:"INFO_TIMEOUT"`
	DownloadTimeout   time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	AudioFetchTimeout time.Duration `mapstructure:"AUDIO_FETCH_TIMEOUT"`
	ConvertTimeout    time.Duration `mapstructure:"CONVERT_TIMEOUT"`
	VideoTimeout      time.Duration `mapstructure:"VIDEO_TIMEOUT"`
	MuxTimeout        time.Duration `mapstructure:"MUX_TIMEOUT"`
	OutputLifetime    time.Duration `mapstructure:"OUTPUT_LIFETIME"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`

	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`

	// comma separated; empty disables CORS handling
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

// stringToDurationHookFunc parses Go duration strings into time.Duration.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes ("500MB") into int64 bytes.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("STORAGE_DIR", "uploads")
	vp.SetDefault("FFMPEG_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("YTDLP_BIN", "yt-dlp")
	vp.SetDefault("YTDLP_EXTRA_ARGS", "")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("MAX_UPLOAD_SIZE", "500MB")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("QUEUE_SIZE", 100)
	vp.SetDefault("PROBE_TIMEOUT", "15s")
	vp.SetDefault("INFO_TIMEOUT", "30s")
	vp.SetDefault("DOWNLOAD_TIMEOUT", "20m")
	vp.SetDefault("AUDIO_FETCH_TIMEOUT", "5m")
	vp.SetDefault("CONVERT_TIMEOUT", "10m")
	vp.SetDefault("VIDEO_TIMEOUT", "20m")
	vp.SetDefault("MUX_TIMEOUT", "5m")
	vp.SetDefault("OUTPUT_LIFETIME", "6h")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0")
	vp.SetDefault("THROTTLE_FREEDISK", "0")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("CORS_ORIGINS", "")

	vp.SetConfigName("mediaconv_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/mediaconv/")

	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	vp.SetEnvPrefix("MEDIACONV")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts the value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1, got %d", c.QueueSize)
	}
	if c.StorageDir == "" {
		return errors.New("STORAGE_DIR must not be empty")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	timeouts := map[string]time.Duration{
		"PROBE_TIMEOUT":       c.ProbeTimeout,
		"INFO_TIMEOUT":        c.InfoTimeout,
		"DOWNLOAD_TIMEOUT":    c.DownloadTimeout,
		"AUDIO_FETCH_TIMEOUT": c.AudioFetchTimeout,
		"CONVERT_TIMEOUT":     c.ConvertTimeout,
		"VIDEO_TIMEOUT":       c.VideoTimeout,
		"MUX_TIMEOUT":         c.MuxTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	// zero disables output expiry
	if c.OutputLifetime < 0 {
		return fmt.Errorf("OUTPUT_LIFETIME must not be negative, got %s", c.OutputLifetime)
	}
	if c.AuthEnable && c.AuthKey == "" {
		return errors.New("AUTH_KEY is required when AUTH_ENABLE is set")
	}
	return nil
}

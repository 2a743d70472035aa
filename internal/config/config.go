package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dkeye/Consult/internal/app/chat"
	"github.com/dkeye/Consult/internal/app/speaker"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	// AllowedOrigins lists extra page origins that may open the control socket.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Meeting Meeting        `mapstructure:"meeting"`
	Speaker speaker.Config `mapstructure:"speaker"`
	Chat    Chat           `mapstructure:"chat"`
	RTC     RTC            `mapstructure:"rtc"`
	Media   Media          `mapstructure:"media"`
}

// Meeting configures the token/room provider.
type Meeting struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Secret       string        `mapstructure:"secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReleaseProbe bool          `mapstructure:"release_probe"`
}

type Chat struct {
	chat.Labels  `mapstructure:",squash"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

// RTC configures the client side of the media transport.
type RTC struct {
	SignalURL        string        `mapstructure:"signal_url"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	MTU              int           `mapstructure:"mtu"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer"`
}

// Media sets capture constraints and encoder targets.
type Media struct {
	Width        int     `mapstructure:"width"`
	Height       int     `mapstructure:"height"`
	FrameRate    float64 `mapstructure:"frame_rate"`
	SampleRate   int     `mapstructure:"sample_rate"`
	VideoBitrate int     `mapstructure:"video_bitrate"`
	AudioBitrate int     `mapstructure:"audio_bitrate"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("CONSULT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signal: %s\n", cfg.Mode, cfg.Port, cfg.RTC.SignalURL)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("meeting.endpoint", "https://api.videosdk.live")
	v.SetDefault("meeting.token_ttl", "2h")
	v.SetDefault("meeting.timeout", "10s")
	v.SetDefault("meeting.release_probe", true)

	sp := speaker.DefaultConfig()
	v.SetDefault("speaker.threshold", sp.Threshold)
	v.SetDefault("speaker.interval", sp.Interval)
	v.SetDefault("speaker.fft_size", sp.FFTSize)
	v.SetDefault("speaker.smoothing", sp.Smoothing)
	v.SetDefault("speaker.min_decibels", sp.MinDecibels)
	v.SetDefault("speaker.max_decibels", sp.MaxDecibels)
	v.SetDefault("speaker.stale_after", sp.StaleAfter)

	labels := chat.DefaultLabels()
	v.SetDefault("chat.local_label", labels.Local)
	v.SetDefault("chat.system_label", labels.System)
	v.SetDefault("chat.unknown_label", labels.Unknown)
	v.SetDefault("chat.rate_limit", 5)
	v.SetDefault("chat.rate_interval", "3s")

	v.SetDefault("rtc.signal_url", "ws://localhost:7880/rtc")
	v.SetDefault("rtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rtc.mtu", 1200)
	v.SetDefault("rtc.handshake_timeout", "10s")
	v.SetDefault("rtc.send_buffer", 64)

	v.SetDefault("media.width", 640)
	v.SetDefault("media.height", 480)
	v.SetDefault("media.frame_rate", 30)
	v.SetDefault("media.sample_rate", 48000)
	v.SetDefault("media.video_bitrate", 500_000)
	v.SetDefault("media.audio_bitrate", 32_000)
}

// Package config loads the sectioned config file and the secrets env file
// into one typed Config. Everything is normalized in a single pass; missing
// required structure fails Validate at startup rather than surfacing as a
// nil map three layers down.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	General  GeneralConfig
	OBS      OBSConfig
	Twitch   PlatformConfig
	YouTube  PlatformConfig
	TikTok   PlatformConfig
	TTS      TTSConfig
	Commands CommandsConfig
	VFX      map[string]VFXCommandConfig

	// Notification classes, keyed by section name (gifts, follows,
	// paypiggies, raids, shares, redemptions, greetings, farewells).
	Classes map[string]ClassConfig

	Secrets Secrets
}

type GeneralConfig struct {
	MessagesEnabled      bool
	GreetingsEnabled     bool
	FarewellsEnabled     bool
	FollowsEnabled       bool
	GiftsEnabled         bool
	PaypiggiesEnabled    bool
	RaidsEnabled         bool
	SharesEnabled        bool
	RedemptionsEnabled   bool
	CommandsEnabled      bool
	NotificationsEnabled bool
	DebugEnabled         bool
	TTSEnabled           bool

	UserSuppressionEnabled       bool
	MaxNotificationsPerUser      int
	SuppressionWindowMs          int
	SuppressionDurationMs        int
	SuppressionCleanupIntervalMs int

	StreamDetectionEnabled       bool
	StreamRetryInterval          int // seconds
	StreamMaxRetries             int
	ContinuousMonitoringInterval int // seconds

	ViewerPollIntervalSecs int

	ChatMsgTxt   string
	ChatMsgScene string
	ChatMsgGroup string
}

// Flag returns a boolean general key by its config name, used for
// per-platform override fallback.
func (g GeneralConfig) Flag(name string) bool {
	switch name {
	case "messagesEnabled":
		return g.MessagesEnabled
	case "greetingsEnabled":
		return g.GreetingsEnabled
	case "farewellsEnabled":
		return g.FarewellsEnabled
	case "followsEnabled":
		return g.FollowsEnabled
	case "giftsEnabled":
		return g.GiftsEnabled
	case "paypiggiesEnabled":
		return g.PaypiggiesEnabled
	case "raidsEnabled":
		return g.RaidsEnabled
	case "sharesEnabled":
		return g.SharesEnabled
	case "redemptionsEnabled":
		return g.RedemptionsEnabled
	case "commandsEnabled":
		return g.CommandsEnabled
	case "notificationsEnabled":
		return g.NotificationsEnabled
	case "ttsEnabled":
		return g.TTSEnabled
	case "userSuppressionEnabled":
		return g.UserSuppressionEnabled
	}
	return false
}

type OBSConfig struct {
	Address              string
	NotificationTxt      string
	NotificationScene    string
	NotificationMsgGroup string
	VFXMediaSource       string
}

// PlatformConfig holds one platform section. Overrides carries any
// *Enabled keys the section sets, consulted before the general flags.
type PlatformConfig struct {
	Enabled                bool
	StreamDetectionEnabled bool
	Channel                string // twitch channel / youtube channel id / tiktok unique id
	Username               string // operator account for self-message filtering
	OperatorUserID         string
	BackgroundInit         bool

	Overrides map[string]bool
}

type TTSConfig struct {
	Enabled     bool
	Endpoint    string
	Voice       string
	WordsPerMin int
	TimeoutSecs int
}

type CommandsConfig struct {
	Enabled             bool
	CmdCooldownMs       int
	HeavyCmdCooldownMs  int
	GlobalCooldownTTLMs int
	CooldownCleanupMs   int
}

type VFXCommandConfig struct {
	Triggers    []string
	Keywords    []string
	MediaSource string
	DurationMs  int
	Heavy       bool
}

// ClassConfig configures one notification class section.
type ClassConfig struct {
	Commands   []string // vfx command keys eligible for this class
	DurationMs int
	ByeTokens  []string // farewells only
}

// Secrets comes from the env file and the process environment, never from
// the config file.
type Secrets struct {
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRefreshToken string
	YouTubeAPIKey      string
	TikTokSessionID    string
	OBSPassword        string
}

var requiredSections = []string{
	"general", "obs", "twitch", "youtube", "tiktok",
	"tts", "commands", "vfx", "gifts",
}

// Load parses the config file at path and hydrates secrets from envFile
// (optional) plus the process environment.
func Load(path, envFile string) (*Config, error) {
	sections, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := fromSections(sections)
	if err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: secrets file: %w", err)
		}
	}
	cfg.Secrets = loadSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets() Secrets {
	get := func(key string) string { return strings.TrimSpace(os.Getenv(key)) }
	return Secrets{
		TwitchOAuthToken:   get("TWITCH_OAUTH_TOKEN"),
		TwitchClientID:     get("TWITCH_CLIENT_ID"),
		TwitchClientSecret: get("TWITCH_CLIENT_SECRET"),
		TwitchRefreshToken: get("TWITCH_REFRESH_TOKEN"),
		YouTubeAPIKey:      get("YOUTUBE_API_KEY"),
		TikTokSessionID:    get("TIKTOK_SESSION_ID"),
		OBSPassword:        get("OBS_WEBSOCKET_PASSWORD"),
	}
}

// Validate enforces structural requirements. Credentials are deliberately
// not checked here: missing auth degrades at runtime instead of refusing to
// start.
func (c *Config) Validate() error {
	if c.OBS.NotificationTxt == "" {
		return fmt.Errorf("config: obs.notificationTxt is required")
	}
	if c.General.ChatMsgTxt == "" {
		return fmt.Errorf("config: general.chatMsgTxt is required")
	}
	if c.General.MaxNotificationsPerUser <= 0 {
		return fmt.Errorf("config: general.maxNotificationsPerUser must be positive")
	}
	if c.General.SuppressionWindowMs <= 0 || c.General.SuppressionDurationMs <= 0 {
		return fmt.Errorf("config: suppression window and duration must be positive")
	}
	if c.Commands.CmdCooldownMs < 0 || c.Commands.HeavyCmdCooldownMs < 0 {
		return fmt.Errorf("config: cooldowns must not be negative")
	}
	for key, vc := range c.VFX {
		if vc.MediaSource == "" {
			return fmt.Errorf("config: vfx.%s has no media source", key)
		}
		if len(vc.Triggers) == 0 && len(vc.Keywords) == 0 {
			return fmt.Errorf("config: vfx.%s has neither triggers nor keywords", key)
		}
	}
	return nil
}

// PlatformEnabled reports whether the named flag (e.g. "giftsEnabled") is on
// for the platform, honoring the platform section's override before falling
// back to general.
func (c *Config) PlatformEnabled(platform, flag string) bool {
	var pc *PlatformConfig
	switch platform {
	case "twitch":
		pc = &c.Twitch
	case "youtube":
		pc = &c.YouTube
	case "tiktok":
		pc = &c.TikTok
	}
	if pc != nil {
		if v, ok := pc.Overrides[flag]; ok {
			return v
		}
	}
	return c.General.Flag(flag)
}

func (c *Config) Platform(platform string) *PlatformConfig {
	switch platform {
	case "twitch":
		return &c.Twitch
	case "youtube":
		return &c.YouTube
	case "tiktok":
		return &c.TikTok
	}
	return nil
}

func (c *Config) SuppressionWindow() time.Duration {
	return time.Duration(c.General.SuppressionWindowMs) * time.Millisecond
}

func (c *Config) SuppressionDuration() time.Duration {
	return time.Duration(c.General.SuppressionDurationMs) * time.Millisecond
}

func (c *Config) SuppressionCleanupInterval() time.Duration {
	return time.Duration(c.General.SuppressionCleanupIntervalMs) * time.Millisecond
}

func (c *Config) ViewerPollInterval() time.Duration {
	return time.Duration(c.General.ViewerPollIntervalSecs) * time.Second
}

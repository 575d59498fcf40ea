package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalFile = `
[general]
messagesEnabled = true
giftsEnabled = true
maxNotificationsPerUser = 3
suppressionWindowMs = 60000
suppressionDurationMs = 300000
chatMsgTxt = ChatText
chatMsgScene = Main

[obs]
notificationTxt = NotifText
notificationScene = Main

[twitch]
enabled = true
channel = somechannel
username = somebot

[youtube]
enabled = false

[tiktok]
enabled = false

[tts]
enabled = false

[commands]
cmdCooldownMs = 30000

[vfx]
confetti.triggers = !confetti, !party
confetti.media = confetti.webm
confetti.durationMs = 6000

[gifts]
commands = confetti
durationMs = 8000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalFile), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Twitch.Enabled {
		t.Fatal("expected twitch enabled")
	}
	if cfg.Twitch.Channel != "somechannel" {
		t.Fatalf("unexpected channel %q", cfg.Twitch.Channel)
	}
	if cfg.General.MaxNotificationsPerUser != 3 {
		t.Fatalf("unexpected maxNotificationsPerUser %d", cfg.General.MaxNotificationsPerUser)
	}
	vc, ok := cfg.VFX["confetti"]
	if !ok {
		t.Fatal("expected confetti vfx command")
	}
	if len(vc.Triggers) != 2 || vc.Triggers[0] != "!confetti" {
		t.Fatalf("unexpected triggers %v", vc.Triggers)
	}
	if vc.DurationMs != 6000 {
		t.Fatalf("unexpected duration %d", vc.DurationMs)
	}
	if got := cfg.Classes["gifts"].Commands; len(got) != 1 || got[0] != "confetti" {
		t.Fatalf("unexpected gifts commands %v", got)
	}
}

func TestLoadMissingSection(t *testing.T) {
	body := strings.Replace(minimalFile, "[vfx]\nconfetti.triggers = !confetti, !party\nconfetti.media = confetti.webm\nconfetti.durationMs = 6000\n", "", 1)
	_, err := Load(writeConfig(t, body), "")
	if err == nil {
		t.Fatal("expected error for missing section")
	}
	if !strings.Contains(err.Error(), "vfx") {
		t.Fatalf("error should name the missing section: %v", err)
	}
}

func TestPlatformOverrideFallsBackToGeneral(t *testing.T) {
	body := strings.Replace(minimalFile, "[youtube]\nenabled = false\n", "[youtube]\nenabled = true\ngiftsEnabled = false\n", 1)
	cfg, err := Load(writeConfig(t, body), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PlatformEnabled("youtube", "giftsEnabled") {
		t.Fatal("youtube override should win")
	}
	if !cfg.PlatformEnabled("twitch", "giftsEnabled") {
		t.Fatal("twitch should fall back to general")
	}
	if !cfg.PlatformEnabled("youtube", "messagesEnabled") {
		t.Fatal("unset override should fall back to general")
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:abc")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	cfg, err := Load(writeConfig(t, minimalFile), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Secrets.TwitchOAuthToken != "oauth:abc" {
		t.Fatalf("unexpected twitch token %q", cfg.Secrets.TwitchOAuthToken)
	}
	if cfg.Secrets.YouTubeAPIKey != "yt-key" {
		t.Fatalf("unexpected youtube key %q", cfg.Secrets.YouTubeAPIKey)
	}
}

func TestValidateRejectsBrokenVFX(t *testing.T) {
	body := strings.Replace(minimalFile, "confetti.media = confetti.webm\n", "", 1)
	_, err := Load(writeConfig(t, body), "")
	if err == nil || !strings.Contains(err.Error(), "media") {
		t.Fatalf("expected media-source error, got %v", err)
	}
}

func TestParseRejectsMalformedLines(t *testing.T) {
	_, err := Load(writeConfig(t, "[general\nx = 1\n"), "")
	if err == nil {
		t.Fatal("expected malformed header error")
	}
	_, err = Load(writeConfig(t, "orphan = 1\n"), "")
	if err == nil {
		t.Fatal("expected key-outside-section error")
	}
}

package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

type sections map[string]map[string]string

// parseFile reads an INI-style sectioned key/value file. Comments start
// with '#' or ';'. Keys are case-sensitive; section names are lowered.
func parseFile(path string) (sections, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	out := sections{}
	current := ""
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("config: %s:%d: malformed section header", path, lineNo)
			}
			current = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if current == "" {
				return nil, fmt.Errorf("config: %s:%d: empty section name", path, lineNo)
			}
			if _, ok := out[current]; !ok {
				out[current] = map[string]string{}
			}
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("config: %s:%d: key outside of a section", path, lineNo)
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("config: %s:%d: expected key = value", path, lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("config: %s:%d: empty key", path, lineNo)
		}
		out[current][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return out, nil
}

func fromSections(s sections) (*Config, error) {
	var missing []string
	for _, name := range requiredSections {
		if _, ok := s[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("config: missing required sections: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		VFX:     map[string]VFXCommandConfig{},
		Classes: map[string]ClassConfig{},
	}

	g := s["general"]
	cfg.General = GeneralConfig{
		MessagesEnabled:      readBool(g, "messagesEnabled", true),
		GreetingsEnabled:     readBool(g, "greetingsEnabled", false),
		FarewellsEnabled:     readBool(g, "farewellsEnabled", false),
		FollowsEnabled:       readBool(g, "followsEnabled", true),
		GiftsEnabled:         readBool(g, "giftsEnabled", true),
		PaypiggiesEnabled:    readBool(g, "paypiggiesEnabled", true),
		RaidsEnabled:         readBool(g, "raidsEnabled", true),
		SharesEnabled:        readBool(g, "sharesEnabled", true),
		RedemptionsEnabled:   readBool(g, "redemptionsEnabled", true),
		CommandsEnabled:      readBool(g, "commandsEnabled", true),
		NotificationsEnabled: readBool(g, "notificationsEnabled", true),
		DebugEnabled:         readBool(g, "debugEnabled", false),
		TTSEnabled:           readBool(g, "ttsEnabled", false),

		UserSuppressionEnabled:       readBool(g, "userSuppressionEnabled", true),
		MaxNotificationsPerUser:      readInt(g, "maxNotificationsPerUser", 5),
		SuppressionWindowMs:          readInt(g, "suppressionWindowMs", 60_000),
		SuppressionDurationMs:        readInt(g, "suppressionDurationMs", 300_000),
		SuppressionCleanupIntervalMs: readInt(g, "suppressionCleanupIntervalMs", 60_000),

		StreamDetectionEnabled:       readBool(g, "streamDetectionEnabled", true),
		StreamRetryInterval:          readInt(g, "streamRetryInterval", 30),
		StreamMaxRetries:             readInt(g, "streamMaxRetries", 10),
		ContinuousMonitoringInterval: readInt(g, "continuousMonitoringInterval", 120),

		ViewerPollIntervalSecs: readInt(g, "viewerPollIntervalSecs", 60),

		ChatMsgTxt:   readString(g, "chatMsgTxt", ""),
		ChatMsgScene: readString(g, "chatMsgScene", ""),
		ChatMsgGroup: readString(g, "chatMsgGroup", ""),
	}

	o := s["obs"]
	cfg.OBS = OBSConfig{
		Address:              readString(o, "address", "ws://127.0.0.1:4455"),
		NotificationTxt:      readString(o, "notificationTxt", ""),
		NotificationScene:    readString(o, "notificationScene", ""),
		NotificationMsgGroup: readString(o, "notificationMsgGroup", ""),
		VFXMediaSource:       readString(o, "vfxMediaSource", "VFXMedia"),
	}

	cfg.Twitch = parsePlatform(s["twitch"], false)
	cfg.YouTube = parsePlatform(s["youtube"], false)
	cfg.TikTok = parsePlatform(s["tiktok"], true)

	tts := s["tts"]
	cfg.TTS = TTSConfig{
		Enabled:     readBool(tts, "enabled", cfg.General.TTSEnabled),
		Endpoint:    readString(tts, "endpoint", ""),
		Voice:       readString(tts, "voice", "default"),
		WordsPerMin: readInt(tts, "wordsPerMin", 160),
		TimeoutSecs: readInt(tts, "timeoutSecs", 8),
	}

	cmds := s["commands"]
	cfg.Commands = CommandsConfig{
		Enabled:             readBool(cmds, "enabled", cfg.General.CommandsEnabled),
		CmdCooldownMs:       readInt(cmds, "cmdCooldownMs", 30_000),
		HeavyCmdCooldownMs:  readInt(cmds, "heavyCmdCooldownMs", 120_000),
		GlobalCooldownTTLMs: readInt(cmds, "globalCooldownTTLMs", 300_000),
		CooldownCleanupMs:   readInt(cmds, "cooldownCleanupMs", 300_000),
	}

	vfx, err := parseVFX(s["vfx"])
	if err != nil {
		return nil, err
	}
	cfg.VFX = vfx

	for _, name := range []string{"gifts", "follows", "paypiggies", "raids", "shares", "redemptions", "greetings", "farewells"} {
		sec, ok := s[name]
		if !ok {
			continue
		}
		cfg.Classes[name] = ClassConfig{
			Commands:   splitList(readString(sec, "commands", "")),
			DurationMs: readInt(sec, "durationMs", 0),
			ByeTokens:  splitList(readString(sec, "byeTokens", "")),
		}
	}

	return cfg, nil
}

func parsePlatform(sec map[string]string, backgroundDefault bool) PlatformConfig {
	pc := PlatformConfig{
		Enabled:                readBool(sec, "enabled", false),
		StreamDetectionEnabled: readBool(sec, "streamDetectionEnabled", true),
		Channel:                readString(sec, "channel", ""),
		Username:               readString(sec, "username", ""),
		OperatorUserID:         readString(sec, "operatorUserId", ""),
		BackgroundInit:         readBool(sec, "backgroundInit", backgroundDefault),
		Overrides:              map[string]bool{},
	}
	for key, val := range sec {
		if !strings.HasSuffix(key, "Enabled") || key == "enabled" || key == "streamDetectionEnabled" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			pc.Overrides[key] = b
		}
	}
	return pc
}

// parseVFX reads dotted keys of the form <command>.<field>.
func parseVFX(sec map[string]string) (map[string]VFXCommandConfig, error) {
	out := map[string]VFXCommandConfig{}
	for key, val := range sec {
		idx := strings.Index(key, ".")
		if idx <= 0 {
			return nil, fmt.Errorf("config: vfx key %q must be <command>.<field>", key)
		}
		name := key[:idx]
		field := key[idx+1:]
		vc := out[name]
		switch field {
		case "triggers":
			vc.Triggers = splitList(val)
		case "keywords":
			vc.Keywords = splitList(val)
		case "media":
			vc.MediaSource = val
		case "durationMs":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("config: vfx.%s.durationMs: %w", name, err)
			}
			vc.DurationMs = n
		case "heavy":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, fmt.Errorf("config: vfx.%s.heavy: %w", name, err)
			}
			vc.Heavy = b
		default:
			return nil, fmt.Errorf("config: vfx.%s: unknown field %q", name, field)
		}
		out[name] = vc
	}
	return out, nil
}

func readString(sec map[string]string, key, def string) string {
	if sec == nil {
		return def
	}
	if v, ok := sec[key]; ok {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return def
}

func readBool(sec map[string]string, key string, def bool) bool {
	if sec == nil {
		return def
	}
	if v, ok := sec[key]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func readInt(sec map[string]string, key string, def int) int {
	if sec == nil {
		return def
	}
	if v, ok := sec[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides file settings with environment variables. Values that
// fail to parse are ignored.
func applyEnv(c *Config) {
	c.Storage.Path = stringOr("MUDRETS_DB", c.Storage.Path)
	c.Model.Order = intOr("MUDRETS_ORDER", c.Model.Order)
	c.Log.Level = stringOr("MUDRETS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = stringOr("MUDRETS_LOG_FORMAT", c.Log.Format)

	c.Telegram.Token = stringOr("BOT_TOKEN", c.Telegram.Token)
	c.Telegram.Token = stringOr("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Bot.ReplyChance = floatOr("REPLY_CHANCE", c.Bot.ReplyChance)

	c.Matrix.Homeserver = stringOr("MATRIX_HOMESERVER", c.Matrix.Homeserver)
	c.Matrix.UserID = stringOr("MATRIX_USER_ID", c.Matrix.UserID)
	c.Matrix.AccessToken = stringOr("MATRIX_ACCESS_TOKEN", c.Matrix.AccessToken)
	c.Matrix.Rooms = stringSliceOr("MATRIX_ROOMS", c.Matrix.Rooms)
}

func stringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

func intOr(name string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return n
}

func floatOr(name string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(name), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// stringSliceOr splits a comma-separated variable, dropping blank elements.
func stringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiliankoe/georacer/internal/game"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string

	OracleProvider string
	OracleModel    string
	OracleTimeout  time.Duration
	GeminiKey      string
	OpenAIKey      string
	OpenAIBaseURL  string
	OllamaHost     string

	DatabaseURL string
	NatsURL     string
	PublicURL   string
	ResultsFile string

	AdminUser string
	AdminPass string

	Game Game `yaml:"game"`
}

// Game holds the tunables that only come from the YAML file.
type Game struct {
	game.Timings     `yaml:",inline"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	FeedPeriod       time.Duration `yaml:"feed_period"`
	EmptyLobbyTTL    time.Duration `yaml:"empty_lobby_ttl"`
}

func DefaultGame() Game {
	return Game{
		Timings:          game.DefaultTimings(),
		SubscriberBuffer: 64,
		FeedPeriod:       30 * time.Second,
		EmptyLobbyTTL:    5 * time.Minute,
	}
}

func FromEnv() Config {
	c := Config{Game: DefaultGame()}
	c.Port = getenv("PORT", "8080")
	c.OracleProvider = strings.ToLower(getenv("ORACLE_PROVIDER", "gemini"))
	c.OracleModel = getenv("ORACLE_MODEL", defaultModel(c.OracleProvider))
	c.OracleTimeout = getduration("ORACLE_TIMEOUT", 20*time.Second)
	c.GeminiKey = os.Getenv("GEMINI_API_KEY")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	c.OllamaHost = getenv("OLLAMA_HOST", "http://localhost:11434")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.NatsURL = os.Getenv("NATS_URL")
	c.PublicURL = getenv("PUBLIC_URL", "http://localhost:"+c.Port)
	c.ResultsFile = os.Getenv("RESULTS_FILE")
	c.AdminUser = os.Getenv("ADMIN_USER")
	c.AdminPass = os.Getenv("ADMIN_PASS")
	return c
}

// Load reads the environment and overlays the YAML file at path, if any.
// An empty path falls back to CONFIG_FILE.
func Load(path string) (Config, error) {
	c := FromEnv()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config file: %w", err)
	}
	if err := c.overlay(b); err != nil {
		return c, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) overlay(b []byte) error {
	var file struct {
		Game *Game `yaml:"game"`
	}
	file.Game = &c.Game
	if err := yaml.Unmarshal(b, &file); err != nil {
		return err
	}
	return c.Game.validate()
}

func (g Game) validate() error {
	t := g.Timings
	switch {
	case t.Countdown < 0 || t.RoundDuration <= 0 || t.Intermission < 0:
		return fmt.Errorf("game durations must be positive")
	case t.DecayInterval <= 0 || g.FeedPeriod <= 0:
		return fmt.Errorf("decay_interval and feed_period must be positive")
	case t.DifficultyFloor <= 0 || t.DifficultyFloor > 1:
		return fmt.Errorf("difficulty_floor must be within (0, 1], got %v", t.DifficultyFloor)
	case t.DecayStep < 0:
		return fmt.Errorf("decay_step must not be negative")
	case g.EmptyLobbyTTL < 0:
		return fmt.Errorf("empty_lobby_ttl must not be negative")
	case g.SubscriberBuffer <= 0:
		return fmt.Errorf("subscriber_buffer must be positive")
	}
	return nil
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "ollama":
		return "llava"
	default:
		return "gemini-2.5-flash-lite"
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil && d > 0 {
		return d
	}
	return def
}

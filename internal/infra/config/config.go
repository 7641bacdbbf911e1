package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig describes service configuration.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	Recommend struct {
		ListCap          int `envconfig:"RECOMMEND_LIST_CAP" default:"10"`
		TrendingCap      int `envconfig:"RECOMMEND_TRENDING_CAP" default:"20"`
		PeerLimit        int `envconfig:"RECOMMEND_PEER_LIMIT" default:"10"`
		NewReleaseDays   int `envconfig:"RECOMMEND_NEW_RELEASE_DAYS" default:"30"`
		CacheTTLSeconds  int `envconfig:"RECOMMEND_CACHE_TTL_SECONDS" default:"300"`
		SuggestUserLimit int `envconfig:"SUGGEST_USER_LIMIT" default:"10"`
	} `envconfig:""`

	Feed struct {
		MaxItems int `envconfig:"FEED_MAX_ITEMS" default:"50"`
	} `envconfig:""`

	Queues struct {
		Activity  string `envconfig:"ACTIVITY_QUEUE_KEY" default:"activity_events"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
	} `envconfig:""`
}

// Load reads the config from the environment.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

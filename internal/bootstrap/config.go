package bootstrap

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	RedisUrl           string `mapstructure:"REDIS_URL"`
	EnginePath         string `mapstructure:"ENGINE_PATH"`
	EngineReplayDepth  int    `mapstructure:"ENGINE_REPLAY_DEPTH"`
	EngineMaxDepth     int    `mapstructure:"ENGINE_MAX_DEPTH"`
	EvalDebounceMs     int    `mapstructure:"EVAL_DEBOUNCE_MS"`
	LichessUrl         string `mapstructure:"LICHESS_URL"`
	LichessClientID    string `mapstructure:"LICHESS_CLIENT_ID"`
	LichessRedirectUrl string `mapstructure:"LICHESS_REDIRECT_URL"`
	ChesscomUrl        string `mapstructure:"CHESSCOM_URL"`
	HistoryLimit       int    `mapstructure:"HISTORY_LIMIT"`
	IsLocalCors        bool   `mapstructure:"LOCAL_CORS"`
}

func Setup(cfgPath string) (*Config, error) {
	viper.SetConfigFile(cfgPath)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.EngineReplayDepth == 0 {
		cfg.EngineReplayDepth = 12
	}
	if cfg.EngineMaxDepth == 0 {
		cfg.EngineMaxDepth = 30
	}
	if cfg.EvalDebounceMs == 0 {
		cfg.EvalDebounceMs = 400
	}
	if cfg.LichessUrl == "" {
		cfg.LichessUrl = "https://lichess.org"
	}
	if cfg.ChesscomUrl == "" {
		cfg.ChesscomUrl = "https://api.chess.com"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 50
	}
}

package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	MessagePattern string
	NamePattern    string
	ScriptEncoding string
	OutputEncoding string
	SubstTablePath string
	SubstChars     string
	ScriptExts     string
	WorkerCount    int
	ToolPath       string
	ToolEngine     string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	return &Config{
		MessagePattern: getEnv("MESSAGE_PATTERN", ""),
		NamePattern:    getEnv("NAME_PATTERN", ""),
		ScriptEncoding: getEnv("SCRIPT_ENCODING", "auto"),
		OutputEncoding: getEnv("OUTPUT_ENCODING", "gbk"),
		SubstTablePath: getEnv("SUBST_TABLE", "resources/hanzi2kanji_table.txt"),
		SubstChars:     getEnv("SUBST_CHARS", ""),
		ScriptExts:     getEnv("SCRIPT_EXTS", ""),
		WorkerCount:    getEnvInt("WORKER_COUNT", 8),
		ToolPath:       getEnv("TOOL_PATH", "msg_tool"),
		ToolEngine:     getEnv("TOOL_ENGINE", "auto"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

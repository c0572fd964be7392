package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds a sugared logger for the given level and redirects the standard
// library logger into it so discordgo and database/sql output is unified.
// "debug" selects zap's development config; anything else is production JSON
// at the parsed level (info when unparseable).
func New(level string) (*zap.SugaredLogger, error) {
	level = strings.ToLower(strings.TrimSpace(level))

	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
		cfg.Level = lvl
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	_ = zap.RedirectStdLog(logger)
	return logger.Sugar(), nil
}

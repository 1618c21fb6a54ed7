package log

import (
	"go.uber.org/zap/zapcore"
)

var (
	// JSON for the long-running service; the key names are consumed by log shippers and should
	// stay stable.
	serviceEncoder = zapcore.EncoderConfig{
		TimeKey:     "time",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		LevelKey:    "severity",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		MessageKey:  "message",

		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Less chatty, for humans running the CLI.
	minimalConsoleEncoder = zapcore.EncoderConfig{
		TimeKey:          zapcore.OmitKey,
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        zapcore.OmitKey,
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
)

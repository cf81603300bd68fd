package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = zap.NewNop()

// Init builds the process logger. Production uses JSON output, otherwise a
// colored development console.
func Init(prod bool) (*zap.Logger, error) {
	var cfg zap.Config
	if prod {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	base = l
	return l, nil
}

func L() *zap.Logger { return base }

func Infof(format string, args ...any)  { base.Sugar().Infof(format, args...) }
func Errorf(format string, args ...any) { base.Sugar().Errorf(format, args...) }

func Sync() { _ = base.Sync() }

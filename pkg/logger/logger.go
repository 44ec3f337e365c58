package logger

import (
	"openpaws/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

func New(p ConfigParams) *zap.Logger {
	log := Build(p.Cfg)
	zap.ReplaceGlobals(log)
	return log
}

// Build creates the process logger: console output in development, JSON
// with severity keys in production. Every entry carries the app name, env,
// version and snowflake node so lines from several instances can be told
// apart.
func Build(cfg *config.Config) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if cfg != nil && cfg.AppEnv == "production" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.StacktraceKey = "stacktrace"
		zc.EncoderConfig.LevelKey = "severity"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.CallerKey = "caller"
		zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		zc.Encoding = "json"
		zc.OutputPaths = []string{"stdout"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}
	if cfg == nil {
		return zap.Must(zc.Build())
	}

	if cfg.Log.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Log.Level)
		if err == nil {
			zc.Level = lvl
		}
	}
	zc.Sampling = nil
	if cfg.Log.SampleInitial > 0 && cfg.Log.SampleThereafter > 0 {
		zc.Sampling = &zap.SamplingConfig{
			Initial:    cfg.Log.SampleInitial,
			Thereafter: cfg.Log.SampleThereafter,
		}
	}

	return zap.Must(zc.Build()).With(
		zap.String("env", cfg.AppEnv),
		zap.String("service_name", cfg.AppName),
		zap.String("version", cfg.AppVersion),
		zap.Int64("node_id", cfg.NodeID),
	)
}

package conf

import (
	"context"
	"io"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 初始化 zap 日志并接管 hlog
// 文件按 lumberjack 滚动，级别取 Hertz.LogLevel
func InitLogger() {
	cfg := GetConf().Hertz
	fileName := cfg.LogFileName
	if fileName == "" {
		fileName = "log/relay.log"
	}
	w := &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
	}
	l := newZapLogger(w)
	l.SetLevel(LogLevel())
	hlog.SetLogger(l)
}

// zapLogger 把 zap 适配成 hlog.FullLogger
type zapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

func newZapLogger(w io.Writer) *zapLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	logger := zap.New(core, zap.AddCallerSkip(2))
	return &zapLogger{sugar: logger.Sugar(), level: level}
}

func (z *zapLogger) SetLevel(lv hlog.Level) {
	switch lv {
	case hlog.LevelTrace, hlog.LevelDebug:
		z.level.SetLevel(zapcore.DebugLevel)
	case hlog.LevelInfo, hlog.LevelNotice:
		z.level.SetLevel(zapcore.InfoLevel)
	case hlog.LevelWarn:
		z.level.SetLevel(zapcore.WarnLevel)
	case hlog.LevelError:
		z.level.SetLevel(zapcore.ErrorLevel)
	case hlog.LevelFatal:
		z.level.SetLevel(zapcore.FatalLevel)
	default:
		z.level.SetLevel(zapcore.InfoLevel)
	}
}

func (z *zapLogger) SetOutput(w io.Writer) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		z.level,
	)
	z.sugar = zap.New(core, zap.AddCallerSkip(2)).Sugar()
}

func (z *zapLogger) Trace(v ...interface{})  { z.sugar.Debug(v...) }
func (z *zapLogger) Debug(v ...interface{})  { z.sugar.Debug(v...) }
func (z *zapLogger) Info(v ...interface{})   { z.sugar.Info(v...) }
func (z *zapLogger) Notice(v ...interface{}) { z.sugar.Info(v...) }
func (z *zapLogger) Warn(v ...interface{})   { z.sugar.Warn(v...) }
func (z *zapLogger) Error(v ...interface{})  { z.sugar.Error(v...) }
func (z *zapLogger) Fatal(v ...interface{})  { z.sugar.Fatal(v...) }

func (z *zapLogger) Tracef(format string, v ...interface{})  { z.sugar.Debugf(format, v...) }
func (z *zapLogger) Debugf(format string, v ...interface{})  { z.sugar.Debugf(format, v...) }
func (z *zapLogger) Infof(format string, v ...interface{})   { z.sugar.Infof(format, v...) }
func (z *zapLogger) Noticef(format string, v ...interface{}) { z.sugar.Infof(format, v...) }
func (z *zapLogger) Warnf(format string, v ...interface{})   { z.sugar.Warnf(format, v...) }
func (z *zapLogger) Errorf(format string, v ...interface{})  { z.sugar.Errorf(format, v...) }
func (z *zapLogger) Fatalf(format string, v ...interface{})  { z.sugar.Fatalf(format, v...) }

func (z *zapLogger) CtxTracef(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Debugf(format, v...)
}
func (z *zapLogger) CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Debugf(format, v...)
}
func (z *zapLogger) CtxInfof(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Infof(format, v...)
}
func (z *zapLogger) CtxNoticef(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Infof(format, v...)
}
func (z *zapLogger) CtxWarnf(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Warnf(format, v...)
}
func (z *zapLogger) CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Errorf(format, v...)
}
func (z *zapLogger) CtxFatalf(ctx context.Context, format string, v ...interface{}) {
	z.sugar.Fatalf(format, v...)
}

package app

import (
	"io"
	"log/slog"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/shopcache"
	shoplogrus "github.com/unkn0wn-root/shopcache/log/logrus"
	shopslog "github.com/unkn0wn-root/shopcache/log/slog"
	shopzap "github.com/unkn0wn-root/shopcache/log/zap"
)

// newLogger builds the adapter named by format. The returned func flushes
// buffered output.
func newLogger(format, level string, w io.Writer) (shopcache.Logger, func() error) {
	switch format {
	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		if lv, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(lv)
		}
		return shoplogrus.New(l), func() error { return nil }
	case "slog":
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
		return shopslog.New(slog.New(h)), func() error { return nil }
	default:
		lv, err := zapcore.ParseLevel(level)
		if err != nil {
			lv = zapcore.InfoLevel
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), lv)
		zl := zap.New(core)
		return shopzap.New(zl), func() error {
			_ = zl.Sync() // EINVAL on terminals
			return nil
		}
	}
}

func slogLevel(level string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

package orm

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger logs every query at debug level on the wrapped *zap.Logger.
//
//	db = db.Debug(orm.ZapLogger{L: logger})
type ZapLogger struct {
	L *zap.Logger
}

func (z ZapLogger) Log(_ context.Context, query string, args ...any) {
	if z.L == nil {
		return
	}
	z.L.Debug("orm query", zap.String("sql", query), zap.Any("args", args))
}

var _ Logger = ZapLogger{}

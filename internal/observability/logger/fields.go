package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard field constructors so key names stay consistent across the
// codebase.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

func Provider(v string) zap.Field  { return zap.String("provider", v) }
func UserID(v string) zap.Field    { return zap.String("user_id", v) }
func SessionID(v string) zap.Field { return zap.String("session_id", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

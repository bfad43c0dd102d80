package gateway

import (
	"log"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func zlogEvent(op string, status int, dur time.Duration, err error) {
	if zlog == nil {
		if err != nil {
			log.Printf("%s status=%d dur=%s err=%v", op, status, dur, err)
		}
		return
	}
	z := zlog.Info().Str("op", op).Int("status", status).Dur("dur", dur)
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("request end")
}

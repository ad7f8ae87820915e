package websocket

import (
	"time"

	"github.com/OldStager01/resilience-plane/pkg/config"
)

type Settings struct {
	MaxConnections  int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	BroadcastBuffer int
	ClientBuffer    int
}

func NewSettings(cfg config.WebSocketConfig) Settings {
	s := Settings{
		MaxConnections:  cfg.MaxConnections,
		WriteWait:       cfg.WriteTimeout,
		PongWait:        cfg.PongTimeout,
		PingPeriod:      cfg.PingInterval,
		MaxMessageSize:  cfg.MaxMessageSize,
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		BroadcastBuffer: cfg.BroadcastBuffer,
		ClientBuffer:    cfg.ClientBuffer,
	}
	if s.MaxConnections <= 0 {
		s.MaxConnections = 1000
	}
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	// pings must go out before the peer's read deadline passes
	if s.PingPeriod <= 0 || s.PingPeriod >= s.PongWait {
		s.PingPeriod = s.PongWait * 9 / 10
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 512
	}
	if s.ReadBufferSize <= 0 {
		s.ReadBufferSize = 1024
	}
	if s.WriteBufferSize <= 0 {
		s.WriteBufferSize = 1024
	}
	if s.BroadcastBuffer <= 0 {
		s.BroadcastBuffer = 256
	}
	if s.ClientBuffer <= 0 {
		s.ClientBuffer = 256
	}
	return s
}

// Command bot is a scripted player: it joins a level, builds ships when it
// can afford them and sends its fleet wandering around its system.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"github.com/dr-vortex/annihilation/internal/logging"
	"github.com/dr-vortex/annihilation/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		playerID = flag.String("player", "", "player id (servers without auth)")
		token    = flag.String("token", "", "session token (servers with auth)")
		every    = flag.Uint64("every", 100, "act every n ticks")
		seed     = flag.Uint64("seed", 0, "random seed (0: time based)")
	)
	flag.Parse()

	logger, _ := logging.New(os.Stdout, "info", "text")
	logger = logger.With("component", "bot", "name", *name)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Error("dial", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		PlayerID:        *playerID,
	}
	if *token != "" {
		hello.Auth = &protocol.HelloAuth{Token: *token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Error("send HELLO", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := newBrain(*every, *seed)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, out := range b.handle(msg, logger) {
			if err := conn.WriteJSON(out); err != nil {
				logger.Warn("send", "err", err)
				return
			}
		}
	}
}

func logResult(logger *slog.Logger, r protocol.ResultMsg) {
	if r.OK {
		logger.Debug("RESULT", "seq", r.Seq)
		return
	}
	logger.Info("RESULT", "seq", r.Seq, "code", r.Code, "message", r.Message)
}

func decode[T any](msg []byte) (T, bool) {
	var v T
	err := json.Unmarshal(msg, &v)
	return v, err == nil
}

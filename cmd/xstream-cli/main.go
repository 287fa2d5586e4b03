// Command xstream-cli is a small diagnostic tool: it wires XSTREAM_*
// environment configuration, structured logging, and the Supervisor
// together, connects, and prints every notification it receives as one
// line of compact JSON. It accepts raw JSON messages on stdin (one per line) and
// sends each one through the session, useful for poking at a server by
// hand without writing a Go program.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/heliotrope-markets/xstream/chain"
	"github.com/heliotrope-markets/xstream/correlator"
	"github.com/heliotrope-markets/xstream/message"
	"github.com/heliotrope-markets/xstream/router"
	"github.com/heliotrope-markets/xstream/signing"
	"github.com/heliotrope-markets/xstream/supervisor"
	"github.com/heliotrope-markets/xstream/xconfig"
	"github.com/heliotrope-markets/xstream/xlog"
)

func main() {
	jsonLogs := flag.Bool("json-logs", false, "emit structured logs as JSON instead of text")
	flag.Parse()

	cfg, err := xconfig.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var logger xlog.Logger
	if *jsonLogs {
		logger = xlog.New()
	} else {
		logger = xlog.NewText()
	}

	var envelope signing.EnvelopeFunc
	if cfg.AuthRequired {
		signer, err := signing.New(cfg.Key, cfg.Secret)
		if err != nil {
			log.Fatalf("building signer: %v", err)
		}
		envelope = signer.NewEnvelopeFunc()
	}

	sup, err := supervisor.New(supervisor.Config{
		URI:                 cfg.URI,
		AuthRequired:        cfg.AuthRequired,
		Envelope:            envelope,
		AutoReconnect:       cfg.AutoReconnect,
		ReplaySubscriptions: cfg.ReplaySubscriptions,
		ConnectTimeout:      cfg.ConnectTimeout,
		SendTimeout:         cfg.SendTimeout,
		RecvTimeout:         cfg.RecvTimeout,
		ProtocolTimeout:     cfg.ProtocolWait,
		LivenessWindow:      cfg.LivenessWindow,
		HeartbeatEvery:      cfg.HeartbeatEvery,
		ReconnectBackoffMin: cfg.ReconnectBackoffMin,
		ReconnectBackoffMax: cfg.ReconnectBackoffMax,
		Name:                "xstream-cli",
		Logger:              logger,
	})
	if err != nil {
		log.Fatalf("building supervisor: %v", err)
	}

	sup.SetResolver(resolveChain())

	r := router.New()
	r.SetSink(message.Sync(func(msg message.Message) (message.Result, error) {
		printJSON(msg)
		return message.Handled(msg), nil
	}))
	sup.SetRouter(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	go readStdin(ctx, sup)

	if err := <-runErr; err != nil && ctx.Err() == nil {
		log.Fatalf("supervisor stopped: %v", err)
	}
}

func readStdin(ctx context.Context, sup *supervisor.Supervisor) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := message.Decode(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid JSON line: %v\n", err)
			continue
		}
		if err := sup.Send(ctx, msg); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}

// resolveChain builds the post-match pipeline installed via
// Supervisor.SetResolver: a response must carry a "data" field (else the
// token fails with an InvalidMessage) before its payload is hoisted to the
// top level for the caller's convenience. Two stages, each free to be
// replaced independently, is exactly what chain.Chain is for.
func resolveChain() func(message.Message) (message.Message, error) {
	pipeline := chain.New(message.Sync(requireData)).Bind(message.Sync(hoistData))
	return func(msg message.Message) (message.Message, error) {
		res, err := pipeline.Invoke(context.Background(), msg)
		if err != nil {
			return nil, err
		}
		return res.Message(), nil
	}
}

func requireData(msg message.Message) (message.Result, error) {
	if _, ok := msg.Get("data"); !ok {
		return message.Result{}, &correlator.InvalidMessage{Path: "data"}
	}
	return message.Handled(msg), nil
}

func hoistData(msg message.Message) (message.Result, error) {
	data, ok := msg.Get("data")
	if !ok {
		return message.Handled(msg), nil
	}
	payload, ok := message.AsMessage(data)
	if !ok {
		return message.Handled(msg), nil
	}
	out := msg.Clone()
	for k, v := range payload {
		out[k] = v
	}
	return message.Handled(out), nil
}

func printJSON(msg message.Message) {
	out, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding notification: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

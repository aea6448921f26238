// Command orbitctl inspects and controls a running orbitflash process
// through its HTTP API.
//
//	orbitctl [-addr URL] [-key KEY] <command> [args]
//
// Commands:
//
//	status                       process mode, uptime and engine counters
//	queue [urgency]              queued opportunities
//	queue-clear                  empty the scheduling queue
//	gas                          gas price per urgency
//	blacklist                    blocked tokens and venues
//	block-token|unblock-token T  edit the token blacklist
//	block-venue|unblock-venue V  edit the venue blacklist
//	contract [address]           show or replace the dispatch contract
//	audit [event]                recent audit entries
//	executions                   recent execution results
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", envOr("ORBITCTL_ADDR", "http://localhost:8080"), "orbitflash API base URL")
	key := flag.String("key", os.Getenv("ORBITCTL_API_KEY"), "API key")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: orbitctl [flags] <command> [args]\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := newClient(*addr, *key)
	if err := run(ctx, c, os.Stdout, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "orbitctl: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, c *client, out io.Writer, cmd string, args []string) error {
	arg := func() (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("%s needs an argument", cmd)
		}
		return args[0], nil
	}

	switch cmd {
	case "status":
		return c.status(ctx, out)
	case "queue":
		urgency := ""
		if len(args) > 0 {
			urgency = args[0]
		}
		return c.queue(ctx, out, urgency)
	case "queue-clear":
		return c.clearQueue(ctx, out)
	case "gas":
		return c.gas(ctx, out)
	case "blacklist":
		return c.blacklist(ctx, out, http.MethodGet, "/api/blacklist")
	case "block-token", "unblock-token", "block-venue", "unblock-venue":
		v, err := arg()
		if err != nil {
			return err
		}
		return c.editBlacklist(ctx, out, cmd, v)
	case "contract":
		if len(args) > 0 {
			return c.setContract(ctx, out, args[0])
		}
		return c.contract(ctx, out)
	case "audit":
		event := ""
		if len(args) > 0 {
			event = args[0]
		}
		return c.audit(ctx, out, event)
	case "executions":
		return c.executions(ctx, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/relaymux/objproxy/objproxy"
)

var help = `
  Usage: objproxyd [command] [--help]

  Commands:
    serve - accept one connection and expose a Greeter service over it
    dial  - connect to a serve instance and call methods on its Greeter

  Read more:
    https://github.com/relaymux/objproxy

`

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	for {
		select {
		case <-sig:
			log.Printf("SIGINT received; cancelling main ctx")
		case <-ctx.Done():
		}
		signal.Stop(sig)
		cancel()
	}
}

func main() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()
	flag.Usage = func() {}
	flag.Parse()

	args := flag.Args()
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "serve":
		go sigIntHandler(ctx, ctxCancel)
		serve(ctx, args)
	case "dial":
		go sigIntHandler(ctx, ctxCancel)
		dial(ctx, args)
	default:
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

// demoGreeter is the toy object this demo exposes across the wire, standing
// in for whatever real domain object a production host would register.
type demoGreeter struct{ greeting string }

func (g *demoGreeter) Greet(name string) string {
	return fmt.Sprintf("%s, %s", g.greeting, name)
}

func (g *demoGreeter) SlowGreet(ctx context.Context, name string) (string, error) {
	select {
	case <-time.After(3 * time.Second):
		return g.Greet(name), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

var serveHelp = `
  Usage: objproxyd serve [options]

  Options:

    --addr, TCP or HTTP listening address (default "127.0.0.1:7777")
    --ws, Accept the session as a WebSocket upgrade over HTTP instead of
    a raw TCP connection
    -v, Enable debug logging
`

func serve(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := flags.String("addr", "127.0.0.1:7777", "")
	ws := flags.Bool("ws", false, "")
	verbose := flags.Bool("v", false, "")
	flags.Usage = func() { fmt.Print(serveHelp); os.Exit(1) }
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}

	level := objproxy.LogLevelInfo
	if *verbose {
		level = objproxy.LogLevelDebug
	}

	locator := objproxy.NewMapServiceLocator()
	locator.RegisterConstructor("Greeter", func(ctorArgs []interface{}) (interface{}, error) {
		greeting, _ := ctorArgs[0].(string)
		return &demoGreeter{greeting: greeting}, nil
	})

	if *ws {
		serveWebSocket(ctx, *addr, level, locator, *verbose)
		return
	}
	serveTCP(ctx, *addr, level, locator)
}

func serveTCP(ctx context.Context, addr string, level objproxy.LogLevel, locator *objproxy.MapServiceLocator) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("objproxyd serve: listening on %s", addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	conn, err := ln.Accept()
	if err != nil {
		log.Fatalf("accept: %v", err)
	}

	host := objproxy.NewHost(conn, locator, objproxy.WithLogger(objproxy.NewLogger("serve", level)))
	log.Printf("objproxyd serve: accepted connection, waiting for session to end")
	if err := host.Wait(); err != nil {
		log.Printf("objproxyd serve: session ended: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// serveWebSocket accepts exactly one session over an HTTP WebSocket upgrade,
// wrapping the handler with jpillora/requestlog at debug level.
func serveWebSocket(ctx context.Context, addr string, level objproxy.LogLevel, locator *objproxy.MapServiceLocator, verbose bool) {
	done := make(chan struct{})
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade: %v", err)
			return
		}
		host := objproxy.NewHostOverWebSocket(conn, locator, objproxy.WithLogger(objproxy.NewLogger("serve", level)))
		if err := host.Wait(); err != nil {
			log.Printf("objproxyd serve: session ended: %v", err)
		}
		close(done)
	})
	if verbose {
		h = requestlog.Wrap(h)
	}

	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Printf("objproxyd serve: listening for a WebSocket session on %s", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	<-done
}

var dialHelp = `
  Usage: objproxyd dial [options] <addr>

  <addr> is the address a "serve" instance is listening on -- a host:port
  for a raw TCP session, or a ws://... URL when --ws is given.

  Options:

    --ws, Dial <addr> as a WebSocket URL instead of a raw TCP address
`

func dial(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("dial", flag.ContinueOnError)
	verbose := flags.Bool("v", false, "")
	ws := flags.Bool("ws", false, "")
	flags.Usage = func() { fmt.Print(dialHelp); os.Exit(1) }
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	rest := flags.Args()
	if len(rest) < 1 {
		log.Fatal("an address is required")
	}

	level := objproxy.LogLevelInfo
	if *verbose {
		level = objproxy.LogLevelDebug
	}

	var host *objproxy.Host
	if *ws {
		h, err := objproxy.DialWebSocketHost(rest[0], nil, nil, objproxy.WithLogger(objproxy.NewLogger("dial", level)))
		if err != nil {
			log.Fatalf("dial: %v", err)
		}
		host = h
	} else {
		conn, err := net.Dial("tcp", rest[0])
		if err != nil {
			log.Fatalf("dial: %v", err)
		}
		host = objproxy.NewHost(conn, nil, objproxy.WithLogger(objproxy.NewLogger("dial", level)))
	}
	defer host.Dispose()

	proxy, err := host.Create(ctx, "Greeter", "hello")
	if err != nil {
		log.Fatalf("Create: %v", err)
	}
	defer proxy.Dispose()

	result, err := proxy.Invoke(ctx, "Greet", nil, "world")
	if err != nil {
		log.Fatalf("Invoke: %v", err)
	}
	fmt.Println(result)
}

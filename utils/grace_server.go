package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	// Large uploads over slow links need more than the usual minute.
	DEFAULT_READ_TIMEOUT     = 5 * time.Minute
	DEFAULT_WRITE_TIMEOUT    = 2 * time.Minute
	DEFAULT_SHUTDOWN_TIMEOUT = 30 * time.Second
	GRACEFUL_ENVIRON_KEY     = "IS_GRACEFUL"
	GRACEFUL_ENVIRON_VALUE   = GRACEFUL_ENVIRON_KEY + "=1"
	GRACEFUL_LISTENER_FD     = 3
)

// Server wraps http.Server with graceful shutdown (SIGTERM, SIGINT) and
// zero-downtime restart (SIGUSR2, the listener is handed to a forked child).
type Server struct {
	*http.Server

	listener        net.Listener
	isGraceful      bool
	signalChan      chan os.Signal
	shutdownChan    chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	hooks           []func()
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		isGraceful:      os.Getenv(GRACEFUL_ENVIRON_KEY) != "",
		signalChan:      make(chan os.Signal, 1),
		shutdownChan:    make(chan struct{}),
		shutdownTimeout: DEFAULT_SHUTDOWN_TIMEOUT,
	}
}

// OnShutdown registers fn to run after the HTTP server has drained, in
// registration order. Used to stop background workers such as the sweeper.
func (srv *Server) OnShutdown(fn func()) {
	srv.hooks = append(srv.hooks, fn)
}

// ListenAndServe starts serving on tcp and handles signals.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := srv.getNetListener(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

// Serve accepts connections on ln until Stop is called or a termination
// signal arrives. It returns once shutdown hooks have run.
func (srv *Server) Serve(ln net.Listener) error {
	srv.listener = ln
	go srv.handleSignals()
	err := srv.Server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		// Serving failed on its own; still run the hooks.
		srv.Stop()
		return err
	}
	// Wait until Shutdown finished
	<-srv.shutdownChan
	return nil
}

// Stop drains the server and runs shutdown hooks. Safe to call repeatedly.
func (srv *Server) Stop() {
	srv.shutdownOnce.Do(func() {
		signal.Stop(srv.signalChan)
		ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			Sugar.Errorf("HTTP server shutdown error: %v", err)
		} else {
			Sugar.Info("HTTP server shutdown success")
		}
		for _, hook := range srv.hooks {
			hook()
		}
		close(srv.shutdownChan)
	})
}

func (srv *Server) getNetListener(addr string) (net.Listener, error) {
	if srv.isGraceful {
		file := os.NewFile(GRACEFUL_LISTENER_FD, "")
		ln, err := net.FileListener(file)
		if err != nil {
			return nil, fmt.Errorf("net.FileListener error: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen error: %w", err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	signal.Notify(srv.signalChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)

	for {
		select {
		case <-srv.shutdownChan:
			return
		case sig := <-srv.signalChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				Sugar.Infof("received %s, graceful shutting down HTTP server", sig)
				go srv.Stop()
			case syscall.SIGUSR2:
				Sugar.Info("received SIGUSR2, graceful restarting HTTP server")
				if pid, err := srv.startNewProcess(); err != nil {
					Sugar.Errorf("start new process failed: %v, continue serving", err)
				} else {
					Sugar.Infof("start new process succeeded, new pid=%d", pid)
					go srv.Stop()
				}
			}
		}
	}
}

// start new process to handle HTTP connections
func (srv *Server) startNewProcess() (uintptr, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("get listener file: %w", err)
	}
	defer file.Close()

	envs := []string{}
	for _, e := range os.Environ() {
		if e != GRACEFUL_ENVIRON_VALUE {
			envs = append(envs, e)
		}
	}
	envs = append(envs, GRACEFUL_ENVIRON_VALUE)

	attr := &syscall.ProcAttr{
		Env:   envs,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	}
	pid, err := syscall.ForkExec(os.Args[0], os.Args, attr)
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return uintptr(pid), nil
}

// GraceServer starts an HTTP server with graceful capabilities. hooks run
// after the server has drained.
func GraceServer(addr string, handler http.Handler, hooks ...func()) error {
	srv := NewServer(addr, handler, DEFAULT_READ_TIMEOUT, DEFAULT_WRITE_TIMEOUT)
	for _, h := range hooks {
		srv.OnShutdown(h)
	}
	return srv.ListenAndServe()
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/StageGate/api"
	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/snapshot"
	"github.com/DarlingtonDeveloper/StageGate/watcher"
	"github.com/DarlingtonDeveloper/StageGate/ws"
)

// EventSessionReloaded is broadcast after the session file was changed by
// another process and reloaded.
const EventSessionReloaded = "session_reloaded"

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to serve on (default from serve.port)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session over HTTP and websocket",
	Long: `Starts the StageGate API for the workspace session. Every change is
saved to the session file and pushed to websocket clients on /ws.

Example:
  sg serve              # port from config.yaml (default 8080)
  sg serve -p 3000`,
	RunE: runServe,
}

// sessionNotifier fans workflow events out to websocket clients and
// persists the session after every mutation.
type sessionNotifier struct {
	hub *ws.Hub
	ws  *workspace
	m   *gate.Machine
}

func (n *sessionNotifier) Notify(eventType string, data interface{}) {
	if err := n.ws.save(n.m); err != nil {
		log.Printf("[serve] failed to save session after %s: %v", eventType, err)
	}
	n.hub.Notify(eventType, data)
}

func newServer(w *workspace, m *gate.Machine, hub *ws.Hub) http.Handler {
	handler := api.NewHandler(m, &sessionNotifier{hub: hub, ws: w, m: m})
	hub.SetStateProvider(handler.State)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.HandleFunc("/api/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{"status":"ok"}`))
	})
	handler.RegisterRoutes(mux)

	return api.Chain(mux,
		api.LoggingMiddleware,
		api.CORSMiddleware(w.Config.Serve.AllowedOrigins),
		api.AuthMiddleware(w.Config.Serve.APIToken),
	)
}

// followSession reloads the served session whenever the session file is
// changed from outside, for example by 'sg answer' in another terminal.
func followSession(wt *watcher.Watcher, m *gate.Machine, hub *ws.Hub) {
	for {
		select {
		case <-wt.Done():
			return
		case ev := <-wt.Events():
			if err := replaceSession(m.Store(), ev.Content); err != nil {
				log.Printf("[serve] ignoring unreadable session change: %v", err)
				continue
			}
			log.Printf("[serve] session reloaded from %s", ev.Path)
			hub.Notify(EventSessionReloaded, m.Progress())
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace()
	if err != nil {
		return err
	}
	m, err := w.load()
	if err != nil {
		return err
	}
	port := w.Config.Serve.Port
	if servePort != 0 {
		port = servePort
	}

	hub := ws.NewHub(ws.Options{
		Token:          w.Config.Serve.APIToken,
		AllowedOrigins: w.Config.Serve.AllowedOrigins,
	})
	go hub.Run()

	wt := watcher.New(w.sessionPath(), watcher.DefaultInterval)
	w.onSave = wt.Mark
	if err := wt.Start(); err != nil {
		return err
	}
	defer wt.Stop()
	go followSession(wt, m, hub)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newServer(w, m, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[serve] StageGate session %s", m.Store().SessionID())
	log.Printf("[serve]   workspace: %s", w.Dir)
	log.Printf("[serve]   port: %d", port)
	if w.Config.Serve.APIToken == "" {
		log.Printf("[serve]   auth: disabled (set STAGEGATE_API_TOKEN to enable)")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		hub.Close()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigChan:
	}

	log.Println("[serve] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[serve] shutdown: %v", err)
	}
	hub.Close()

	if err := w.save(m); err != nil {
		return err
	}
	if cp, err := createCheckpoint(w, snapshot.Export(m.Store()), time.Now()); err == nil {
		log.Printf("[serve] shutdown checkpoint created: %s", cp.ID)
	} else {
		log.Printf("[serve] shutdown checkpoint failed: %v", err)
	}
	return nil
}

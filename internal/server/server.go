package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/amjad-AR/ChatApp/internal/directory"
	"github.com/amjad-AR/ChatApp/internal/distributor"
	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/registry"
	"github.com/amjad-AR/ChatApp/internal/router"
	"github.com/amjad-AR/ChatApp/internal/server/middleware"
	"github.com/amjad-AR/ChatApp/internal/signaling"
	"github.com/amjad-AR/ChatApp/internal/store"
	"github.com/amjad-AR/ChatApp/pkg/config"
	"github.com/amjad-AR/ChatApp/pkg/transport"
)

type App struct {
	logger      *slog.Logger
	registry    *registry.Registry
	router      *router.Router
	distributor *distributor.Distributor
	relay       *signaling.Relay
	dispatcher  *Dispatcher
	store       store.Store
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st store.Store, dir directory.Directory) *App {
	reg := registry.New(logger)
	rt := router.New(logger, reg)
	dist := distributor.New(logger, st, dir, rt)
	relay := signaling.New(logger, reg, rt, cfg.Call.OfferTimeout)
	dispatcher := NewDispatcher(logger, reg, dist, relay, rt)

	app := &App{
		logger:      logger,
		registry:    reg,
		router:      rt,
		distributor: dist,
		relay:       relay,
		dispatcher:  dispatcher,
		store:       st,
		config:      cfg,
		ctx:         rootCtx,
	}

	connCycler := func(userID string) {
		oldest, found := reg.FindOldestConnection(userID)
		if found {
			logger.Info("cycling connection: closing oldest", "userID", userID)
			oldest.Close(errors.New("connection cycled by new connection"))
		}
	}

	authenticated := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				reg.ConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.Handle("GET /api/messages/hall", authenticated(app.handleHallHistory))
	mux.Handle("GET /api/messages/private/{userID}", authenticated(app.handlePrivateHistory))

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.Config(a.config.Transport),
		a.logger,
	)
	if err := a.registry.Attach(conn, reqMeta.UserID); err != nil {
		connLogger.Error("failed to attach connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetMessageHandler(a.dispatcher.HandlerFor(conn, reqMeta.UserID))
	conn.SetCloseHandler(func(id uuid.UUID, err error) {
		a.handleDisconnect(id)
	})

	connLogger.Info("connection fully established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// handleDisconnect tears down registry state for a closed connection and,
// when it was the user's last one, synthesizes call teardown and presence.
func (a *App) handleDisconnect(connID uuid.UUID) {
	userID, last := a.registry.Detach(connID)
	if userID == "" || !last {
		return
	}

	a.relay.HandleUserOffline(userID)

	ev, err := protocol.NewEvent(protocol.EventUserOffline, protocol.PresencePayload{UserID: userID})
	if err == nil {
		a.router.DeliverToHall(ev)
	}
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("closing all active connections...")
	for _, conn := range a.registry.AllConnections() {
		conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("server shut down gracefully.")
	return nil
}

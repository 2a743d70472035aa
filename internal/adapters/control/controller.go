// Package control serves the control WebSocket the hosting page drives a meeting through.
// Every connection is one browser tab with its own preview, transport and session.
package control

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/chat"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/app/preview"
	"github.com/dkeye/Consult/internal/app/speaker"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	Devices      core.Devices
	Rooms        core.RoomProvider
	NewTransport func() core.Transport
	Speaker      speaker.Config
	Labels       chat.Labels
	ReleaseProbe bool
	// Origins are page origins accepted besides the agent's own host and loopback.
	Origins []string

	Limiter    *RateLimiter
	Policy     app.Policy
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
}

// checkOrigin accepts requests without an Origin header, pages served by the
// agent itself, loopback pages and the configured origins.
func (ctl *Controller) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	for _, allowed := range ctl.Origins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// HandleControl upgrades the request and runs the tab until the socket closes.
// The tab id comes from the "tab" query parameter, then the client token cookie.
func (ctl *Controller) HandleControl(ctx context.Context, c *gin.Context) {
	tabID := c.Query("tab")
	if tabID == "" {
		tabID = c.GetString("client_token")
	}
	if tabID == "" {
		tabID = uuid.NewString()
	}
	user := domain.UserID(c.GetString("user_id"))
	log.Info().Str("module", "control").Str("tab", tabID).Str("user", string(user)).Msg("new WS connection")

	upgrader := websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("ws upgrade")
		return
	}

	buf := ctl.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	conn := &wsConn{conn: ws, send: make(chan []byte, buf)}
	t := ctl.newTab(tabID, user, conn)

	ctx, cancel := context.WithCancel(ctx)
	period := ctl.PingPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	go conn.writePump(ctx, period)
	go func() {
		defer cancel()
		conn.readPump(ctx, tabID, ctl.ReadLimit, period, t.handle)
		t.close()
	}()
}

func (ctl *Controller) newTab(tabID string, user domain.UserID, conn *wsConn) *tab {
	policy := ctl.Policy
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	t := &tab{
		id:      tabID,
		user:    user,
		conn:    conn,
		policy:  policy,
		limiter: ctl.Limiter,
		preview: preview.NewManager(ctl.Devices, preview.Selection{WebcamOn: true, MicOn: true}),
	}
	t.render = newRenderer(tabID, t.emit)
	t.orch = &orch.Orchestrator{
		Rooms:        ctl.Rooms,
		Transport:    ctl.NewTransport(),
		Devices:      ctl.Devices,
		Sink:         t,
		Notifier:     t,
		Speaker:      ctl.Speaker,
		Labels:       ctl.Labels,
		ReleaseProbe: ctl.ReleaseProbe,
	}
	return t
}

package webserver

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fluffle-tools/gateway/src/bridge"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

const (
	watchWriteTimeout = 10 * time.Second
	watchPongTimeout  = 60 * time.Second
	watchPingPeriod   = 30 * time.Second
)

// Bridge proxies the external bridge backend and hosts the websocket
// status watcher.
type Bridge struct {
	client   *bridge.Client
	interval time.Duration
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewBridge(client *bridge.Client, interval time.Duration, origins []string, logger zerolog.Logger) Bridge {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return Bridge{
		client:   client,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin tooling sends no Origin header.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		log: logger.With().Str("component", "bridge-routes").Logger(),
	}
}

// Health proxies the backend health snapshot, never cached.
func (b Bridge) Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	snap, err := b.client.Health(c.Request.Context())
	if err != nil {
		b.log.Error().Err(err).Msg("health fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "bridge backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Status proxies one deposit lookup, passing the backend's status code
// and error body through.
func (b Bridge) Status(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	hash := c.Query("arbTx")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing arbTx"})
		return
	}
	res, err := b.client.DepositStatus(c.Request.Context(), hash)
	if err != nil {
		b.writeClientError(c, err, "status fetch failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

// Deposit forwards a submission. A backend conflict (already recorded)
// is surfaced as success so double-submits stay harmless for callers.
func (b Bridge) Deposit(c *gin.Context) {
	var req struct {
		ArbTxHash string `json:"arbTxHash" binding:"required"`
		Sender    string `json:"sender" binding:"required"`
		AmountWei string `json:"amountWei" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !txHashRe.MatchString(req.ArbTxHash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad transaction hash"})
		return
	}
	if _, err := bridge.FormatWei(req.AmountWei, 6); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad amountWei"})
		return
	}

	res, err := b.client.SubmitDeposit(c.Request.Context(), req.ArbTxHash, req.Sender, req.AmountWei)
	if err != nil {
		b.writeClientError(c, err, "deposit submission failed")
		return
	}
	msg := res.Message
	if msg == "" {
		msg = "deposit recorded"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// Watch upgrades to a websocket and streams poller snapshots for one
// hash until it reaches a terminal status or the client goes away.
func (b Bridge) Watch(c *gin.Context) {
	hash := c.Query("arbTx")
	if !txHashRe.MatchString(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or bad arbTx"})
		return
	}
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	b.log.Info().Str("session", session).Str("hash", hash).Msg("watch started")

	done := make(chan struct{})
	updates := make(chan bridge.Snapshot, 8)
	p := bridge.NewPoller(b.client, b.interval, func(s bridge.Snapshot) {
		if s.State == bridge.PollTerminal {
			// A terminal snapshot has no successor, so it must not be
			// dropped; wait until the writer takes it or the client is
			// gone.
			select {
			case updates <- s:
			case <-done:
			}
			return
		}
		select {
		case updates <- s:
		default:
			// Drop intermediate snapshots behind a slow socket; a
			// newer one supersedes them.
		}
	})
	defer p.Close()
	p.Track(hash)

	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(watchPingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-done:
			b.log.Info().Str("session", session).Msg("watch client disconnected")
			return
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case s := <-updates:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(s); err != nil {
				return
			}
			if s.State == bridge.PollTerminal {
				b.log.Info().Str("session", session).Msg("watch finished")
				conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func (b Bridge) writeClientError(c *gin.Context, err error, logMsg string) {
	var apiErr *bridge.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	b.log.Error().Err(err).Msg(logMsg)
	c.JSON(http.StatusBadGateway, gin.H{"error": "bridge backend unavailable"})
}

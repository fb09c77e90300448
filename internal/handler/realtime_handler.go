package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

const (
	// OpSnapshot marks the initial push sent right after a subscription opens.
	OpSnapshot realtime.Op = "SNAPSHOT"
	// OpRefresh marks a push caused by a change to the actor's own scope.
	OpRefresh realtime.Op = "REFRESH"
)

// scopeTables hold the assignments a member's scope is derived from.
var scopeTables = []string{models.TableProjects, models.TableMembers, models.TableProjectStudents}

const realtimeWriteTimeout = 5 * time.Second

type changeSubscriber interface {
	Subscribe(table string, cb realtime.Callback) *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

type scopeResolver interface {
	Resolve(ctx context.Context, actor *models.JWTClaims) (visibility.Scope, error)
}

// TableLister re-runs the actor scoped list for a table.
type TableLister func(ctx context.Context, scope visibility.Scope) (interface{}, error)

// RealtimeMessage is pushed to the client whenever a subscribed table changes.
type RealtimeMessage struct {
	Table string           `json:"table"`
	Op    realtime.Op      `json:"op"`
	Data  interface{}      `json:"data,omitempty"`
	Error *appErrors.Error `json:"error,omitempty"`
}

// RealtimeHandler upgrades to a WebSocket and streams scoped table snapshots.
// The actor's scope is resolved again before every push so assignment changes
// take effect on open sockets.
type RealtimeHandler struct {
	hub            changeSubscriber
	resolver       scopeResolver
	listers        map[string]TableLister
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRealtimeHandler constructs RealtimeHandler. Only tables with a lister can
// be subscribed.
func NewRealtimeHandler(hub changeSubscriber, resolver scopeResolver, listers map[string]TableLister, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, resolver: resolver, listers: listers, allowedOrigins: allowedOrigins, logger: logger}
}

// Subscribe godoc
// @Summary Subscribe to table changes
// @Description WebSocket endpoint. Pass the token as access_token when headers cannot be set.
// @Tags Realtime
// @Param tables query string true "Comma separated table names"
// @Success 101
// @Failure 400 {object} response.Envelope
// @Router /realtime [get]
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	tables, err := h.parseTables(c.Query("tables"))
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.allowedOrigins})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Client messages are ignored. CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(context.Background())

	session := newRealtimeSession(tables)
	subs := make([]*realtime.Subscription, 0, len(tables)+len(scopeTables))
	for _, table := range tables {
		subs = append(subs, h.hub.Subscribe(table, session.onChange))
	}
	if !claims.IsAdmin() {
		for _, table := range scopeTables {
			subs = append(subs, h.hub.Subscribe(table, session.onScopeChange))
		}
	}
	defer func() {
		for _, sub := range subs {
			h.hub.Unsubscribe(sub)
		}
	}()

	var expired <-chan time.Time
	if claims.ExpiresAt != nil {
		timer := time.NewTimer(time.Until(claims.ExpiresAt.Time))
		defer timer.Stop()
		expired = timer.C
	}

	for _, table := range tables {
		if err := h.push(ctx, conn, scope, nil, table, OpSnapshot); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			_ = conn.Close(websocket.StatusPolicyViolation, "token expired")
			return
		case <-session.signal:
			pending := session.drain()
			current, resolveErr := h.resolver.Resolve(ctx, claims)
			if errors.Is(resolveErr, visibility.ErrInactive) {
				_ = conn.Close(websocket.StatusPolicyViolation, "account is inactive")
				return
			}
			if resolveErr != nil {
				h.logger.Warn("realtime scope refresh failed", zap.String("user", claims.Email), zap.Error(resolveErr))
			} else {
				scope = current
			}
			for _, table := range tables {
				op, ok := pending[table]
				if !ok {
					continue
				}
				if err := h.push(ctx, conn, scope, resolveErr, table, op); err != nil {
					h.logger.Debug("realtime push failed", zap.String("table", table), zap.Error(err))
					_ = conn.Close(websocket.StatusInternalError, "write failed")
					return
				}
			}
		}
	}
}

// push lists table under scope and writes the result. A non-nil scopeErr is
// sent in place of data.
func (h *RealtimeHandler) push(ctx context.Context, conn *websocket.Conn, scope visibility.Scope, scopeErr error, table string, op realtime.Op) error {
	msg := RealtimeMessage{Table: table, Op: op}
	if scopeErr != nil {
		msg.Error = appErrors.Wrap(scopeErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access scope")
	} else if data, err := h.listers[table](ctx, scope); err != nil {
		msg.Error = appErrors.FromError(err)
	} else {
		msg.Data = data
	}
	writeCtx, cancel := context.WithTimeout(ctx, realtimeWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func (h *RealtimeHandler) parseTables(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	var tables []string
	for _, part := range strings.Split(raw, ",") {
		table := strings.TrimSpace(part)
		if table == "" {
			continue
		}
		if _, dup := seen[table]; dup {
			continue
		}
		if !models.IsKnownTable(table) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown table %q", table))
		}
		if _, ok := h.listers[table]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("table %q cannot be subscribed", table))
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	if len(tables) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tables is required")
	}
	sort.Strings(tables)
	return tables, nil
}

// realtimeSession coalesces hub callbacks into at most one pending refresh per
// table so a slow client never blocks the hub workers.
type realtimeSession struct {
	mu     sync.Mutex
	tables []string
	dirty  map[string]realtime.Op
	signal chan struct{}
}

func newRealtimeSession(tables []string) *realtimeSession {
	return &realtimeSession{tables: tables, dirty: make(map[string]realtime.Op), signal: make(chan struct{}, 1)}
}

func (s *realtimeSession) onChange(_ context.Context, events []realtime.Event) {
	if len(events) == 0 {
		return
	}
	last := events[len(events)-1]
	s.mu.Lock()
	s.dirty[last.Table] = last.Op
	s.mu.Unlock()
	s.notify()
}

// onScopeChange marks every subscribed table for a refresh under the
// re-resolved scope. Ops already pending from table events are kept.
func (s *realtimeSession) onScopeChange(_ context.Context, events []realtime.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	for _, table := range s.tables {
		if _, pending := s.dirty[table]; !pending {
			s.dirty[table] = OpRefresh
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *realtimeSession) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *realtimeSession) drain() map[string]realtime.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.dirty
	s.dirty = make(map[string]realtime.Op)
	return out
}

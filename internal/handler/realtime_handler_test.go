package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-backoffice-api/internal/middleware"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
)

type fakeHub struct {
	mu           sync.Mutex
	subs         map[string][]realtime.Callback
	unsubscribed []string
	subscribed   chan string
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: make(map[string][]realtime.Callback), subscribed: make(chan string, 16)}
}

func (h *fakeHub) Subscribe(table string, cb realtime.Callback) *realtime.Subscription {
	h.mu.Lock()
	h.subs[table] = append(h.subs[table], cb)
	h.mu.Unlock()
	h.subscribed <- table
	return &realtime.Subscription{}
}

func (h *fakeHub) Unsubscribe(*realtime.Subscription) {
	h.mu.Lock()
	h.unsubscribed = append(h.unsubscribed, "sub")
	h.mu.Unlock()
}

func (h *fakeHub) fire(table string, op realtime.Op) {
	h.mu.Lock()
	cbs := append([]realtime.Callback(nil), h.subs[table]...)
	h.mu.Unlock()
	for _, cb := range cbs {
		cb(context.Background(), []realtime.Event{{Table: table, Op: op, ID: "x"}})
	}
}

func (h *fakeHub) unsubscribeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.unsubscribed)
}

func (h *fakeHub) waitSubscribed(t *testing.T, ctx context.Context, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.subscribed:
		case <-ctx.Done():
			t.Fatal("subscription not registered")
		}
	}
}

// switchableResolver hands out member scopes for whatever projects are set.
type switchableResolver struct {
	mu         sync.Mutex
	projectIDs []string
	err        error
}

func (r *switchableResolver) set(err error, projectIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectIDs = projectIDs
	r.err = err
}

func (r *switchableResolver) Resolve(_ context.Context, actor *models.JWTClaims) (visibility.Scope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return visibility.Scope{}, r.err
	}
	return visibility.ForMember(actor.UserID, actor.Email, append([]string(nil), r.projectIDs...)), nil
}

type realtimeFrame struct {
	Table string   `json:"table"`
	Op    string   `json:"op"`
	Data  []string `json:"data"`
}

func serveRealtime(t *testing.T, h *RealtimeHandler, claims *models.JWTClaims, scope visibility.Scope) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/realtime", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
		c.Set(middleware.ContextScopeKey, scope)
		c.Next()
	}, h.Subscribe)
	return httptest.NewServer(router)
}

func dialRealtime(t *testing.T, ctx context.Context, server *httptest.Server, tables string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime?tables=" + tables
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func memberClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "member-1", Role: models.RoleMember, Email: "m1@institute.test"}
}

func TestRealtimeHandlerParseTables(t *testing.T) {
	h := NewRealtimeHandler(newFakeHub(), nil, map[string]TableLister{
		models.TableStudents: func(context.Context, visibility.Scope) (interface{}, error) { return nil, nil },
	}, nil, nil)

	tables, err := h.parseTables(" students , students,")
	require.NoError(t, err)
	assert.Equal(t, []string{"students"}, tables)

	_, err = h.parseTables("grades")
	assert.Error(t, err)

	_, err = h.parseTables("members")
	assert.Error(t, err)

	_, err = h.parseTables("")
	assert.Error(t, err)
}

func TestRealtimeHandlerRejectsUnknownTableBeforeUpgrade(t *testing.T) {
	h := NewRealtimeHandler(newFakeHub(), nil, map[string]TableLister{}, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/realtime?tables=grades", nil, memberScope())

	h.Subscribe(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRealtimeHandlerStreamsScopedSnapshots(t *testing.T) {
	hub := newFakeHub()
	resolver := &switchableResolver{}
	var (
		mu    sync.Mutex
		calls int
	)
	listers := map[string]TableLister{
		models.TableRequisitions: func(_ context.Context, scope visibility.Scope) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return []string{scope.Email}, nil
		},
	}
	h := NewRealtimeHandler(hub, resolver, listers, nil, nil)
	server := serveRealtime(t, h, memberClaims(), visibility.ForMember("member-1", "m1@institute.test", nil))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRealtime(t, ctx, server, "requisitions")

	var msg realtimeFrame
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "requisitions", msg.Table)
	assert.Equal(t, "SNAPSHOT", msg.Op)
	assert.Equal(t, []string{"m1@institute.test"}, msg.Data)

	hub.waitSubscribed(t, ctx, 1+len(scopeTables))
	hub.fire(models.TableRequisitions, realtime.OpUpdate)

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "UPDATE", msg.Op)
	assert.Equal(t, []string{"m1@institute.test"}, msg.Data)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.unsubscribeCount() == 1+len(scopeTables) }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestRealtimeHandlerReresolvesScopeOnEachPush(t *testing.T) {
	hub := newFakeHub()
	resolver := &switchableResolver{}
	resolver.set(nil, "p1")
	listers := map[string]TableLister{
		models.TableStudents: func(_ context.Context, scope visibility.Scope) (interface{}, error) {
			return scope.ProjectIDs, nil
		},
	}
	h := NewRealtimeHandler(hub, resolver, listers, nil, nil)
	server := serveRealtime(t, h, memberClaims(), visibility.ForMember("member-1", "m1@institute.test", []string{"p1"}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRealtime(t, ctx, server, "students")
	defer conn.CloseNow()

	var msg realtimeFrame
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, []string{"p1"}, msg.Data)
	hub.waitSubscribed(t, ctx, 1+len(scopeTables))

	resolver.set(nil, "p1", "p2")
	hub.fire(models.TableStudents, realtime.OpInsert)
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "INSERT", msg.Op)
	assert.Equal(t, []string{"p1", "p2"}, msg.Data)

	// An assignment change alone pushes a refresh of the subscribed tables.
	resolver.set(nil, "p2")
	hub.fire(models.TableProjects, realtime.OpUpdate)
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "students", msg.Table)
	assert.Equal(t, "REFRESH", msg.Op)
	assert.Equal(t, []string{"p2"}, msg.Data)
}

func TestRealtimeHandlerClosesForInactiveMember(t *testing.T) {
	hub := newFakeHub()
	resolver := &switchableResolver{}
	listers := map[string]TableLister{
		models.TableStudents: func(_ context.Context, scope visibility.Scope) (interface{}, error) {
			return scope.ProjectIDs, nil
		},
	}
	h := NewRealtimeHandler(hub, resolver, listers, nil, nil)
	server := serveRealtime(t, h, memberClaims(), visibility.ForMember("member-1", "m1@institute.test", []string{"p1"}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRealtime(t, ctx, server, "students")
	defer conn.CloseNow()

	var msg realtimeFrame
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	hub.waitSubscribed(t, ctx, 1+len(scopeTables))

	resolver.set(visibility.ErrInactive)
	hub.fire(models.TableMembers, realtime.OpUpdate)

	err := wsjson.Read(ctx, conn, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestRealtimeHandlerClosesWhenTokenExpires(t *testing.T) {
	hub := newFakeHub()
	listers := map[string]TableLister{
		models.TableRequisitions: func(_ context.Context, scope visibility.Scope) (interface{}, error) {
			return []string{scope.Email}, nil
		},
	}
	h := NewRealtimeHandler(hub, &switchableResolver{}, listers, nil, nil)
	claims := memberClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(300 * time.Millisecond))
	server := serveRealtime(t, h, claims, visibility.ForMember("member-1", "m1@institute.test", nil))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRealtime(t, ctx, server, "requisitions")
	defer conn.CloseNow()

	var msg realtimeFrame
	require.NoError(t, wsjson.Read(ctx, conn, &msg))

	err := wsjson.Read(ctx, conn, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

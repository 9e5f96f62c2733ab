package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/glebarez/go-sqlite"

	"masterok/internal/auth"
	"masterok/internal/fanout"
	"masterok/internal/models"
	"masterok/internal/repositories"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

var (
	client    = auth.Identity{ID: 1, Role: models.RoleClient}
	otherUser = auth.Identity{ID: 2, Role: models.RoleClient}
	admin     = auth.Identity{ID: 99, Role: models.RoleAdmin}
	providerA = auth.Identity{ID: 10, Role: models.RoleProvider}
	providerB = auth.Identity{ID: 11, Role: models.RoleProvider}
	providerC = auth.Identity{ID: 12, Role: models.RoleProvider}
)

type testEnv struct {
	db        *sql.DB
	events    *fanout.Recorder
	users     *repositories.UserRepository
	requests  *RequestService
	responses *ResponseService
	chats     *ChatService
	messages  *MessageService
	match     *MatchService
}

// newTestEnv wires the services against a fresh SQLite file. A single
// connection mirrors the row lock a server database gives the selection
// transaction.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := repositories.Migrate(context.Background(), db, repositories.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	d := repositories.SQLite
	reqRepo := repositories.NewRequestRepository(db, d)
	respRepo := repositories.NewResponseRepository(db, d)
	chatRepo := repositories.NewChatRepository(db, d)
	msgRepo := repositories.NewMessageRepository(db, d)
	users := repositories.NewUserRepository(db, d)
	events := &fanout.Recorder{}
	log := testLogger{}

	chats := &ChatService{DB: db, Chats: chatRepo, Messages: msgRepo, Events: events, Log: log}
	return &testEnv{
		db:     db,
		events: events,
		users:  users,
		requests: &RequestService{DB: db, Requests: reqRepo, Responses: respRepo, Users: users,
			Events: events, Log: log},
		responses: &ResponseService{DB: db, Requests: reqRepo, Responses: respRepo, Events: events, Log: log},
		chats:     chats,
		messages:  &MessageService{DB: db, Chats: chatRepo, Messages: msgRepo, Events: events, Log: log},
		match: &MatchService{DB: db, Requests: reqRepo, Responses: respRepo, Chats: chats,
			Events: events, Log: log},
	}
}

func validRequestInput() models.RequestInput {
	budget := 15000.0
	return models.RequestInput{
		Title:       "Washer leaks",
		Description: "Water under the machine after every cycle",
		Type:        "washing_machine",
		Address:     "Abay 10",
		District:    "Almaly",
		Budget:      &budget,
	}
}

func (e *testEnv) postRequest(t *testing.T, owner auth.Identity) models.Request {
	t.Helper()
	req, err := e.requests.CreateRequest(context.Background(), owner, validRequestInput())
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (e *testEnv) bid(t *testing.T, provider auth.Identity, requestID int64, price float64) models.Response {
	t.Helper()
	resp, err := e.responses.SubmitResponse(context.Background(), provider, requestID, models.ResponseInput{
		Price:   price,
		Message: "Can come tomorrow morning",
	})
	if err != nil {
		t.Fatalf("submit response: %v", err)
	}
	return resp
}

func (e *testEnv) selected(t *testing.T) (models.Request, models.Response, models.Chat) {
	t.Helper()
	req := e.postRequest(t, client)
	a := e.bid(t, providerA, req.ID, 10000)
	e.bid(t, providerB, req.ID, 9000)
	sel, err := e.match.SelectProvider(context.Background(), client, req.ID, a.ID)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	return sel.Request, a, sel.Chat
}

// checkInvariants asserts the request/response/chat invariants straight from storage.
func (e *testEnv) checkInvariants(t *testing.T, requestID int64) {
	t.Helper()
	var (
		status   string
		selected sql.NullInt64
	)
	if err := e.db.QueryRow(`SELECT status, selected_provider_id FROM requests WHERE id = ?`, requestID).Scan(&status, &selected); err != nil {
		t.Fatalf("load request: %v", err)
	}
	resolved := status == models.RequestStatusInProgress || status == models.RequestStatusCompleted
	if selected.Valid != resolved {
		t.Fatalf("selected provider set=%v but status=%s", selected.Valid, status)
	}

	var accepted int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM responses WHERE request_id = ? AND status = ?`,
		requestID, models.ResponseStatusAccepted).Scan(&accepted); err != nil {
		t.Fatalf("count accepted: %v", err)
	}
	if accepted > 1 || (accepted == 1) != resolved {
		t.Fatalf("accepted responses=%d with status=%s", accepted, status)
	}

	var chats int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM chats WHERE request_id = ?`, requestID).Scan(&chats); err != nil {
		t.Fatalf("count chats: %v", err)
	}
	if chats > 1 || (chats == 1) != resolved {
		t.Fatalf("chats=%d with status=%s", chats, status)
	}
}

func responseStatus(t *testing.T, db *sql.DB, id int64) string {
	t.Helper()
	var status string
	if err := db.QueryRow(`SELECT status FROM responses WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatalf("load response: %v", err)
	}
	return status
}

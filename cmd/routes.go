package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"masterok/internal/metrics"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, requestID, secureHeaders)
	mux := pat.New()

	// api registers an authenticated JSON route; the pattern doubles as the metric label.
	api := func(method, pattern string, h http.HandlerFunc) {
		chain := standardMiddleware.Append(app.logRequest(pattern), makeResponseJSON, app.authenticate, app.trackPresence)
		mux.Add(method, pattern, chain.ThenFunc(h))
	}

	// Requests. Literal paths go before :id patterns.
	api("POST", "/api/requests", app.requestHandler.Create)
	api("GET", "/api/requests", app.requestHandler.List)
	api("GET", "/api/requests/statistics", app.requestHandler.Statistics)
	api("GET", "/api/requests/:id", app.requestHandler.Get)
	api("PUT", "/api/requests/:id", app.requestHandler.Update)
	api("DELETE", "/api/requests/:id", app.requestHandler.Delete)
	api("POST", "/api/requests/:id/responses", app.requestHandler.Respond)
	api("GET", "/api/requests/:id/responses", app.requestHandler.ListResponses)
	api("POST", "/api/requests/:id/select", app.requestHandler.Select)
	api("POST", "/api/requests/:id/cancel", app.requestHandler.Cancel)
	api("POST", "/api/requests/:id/complete", app.requestHandler.Complete)

	// Chats
	api("GET", "/api/chats", app.chatHandler.List)
	api("GET", "/api/chats/unread", app.chatHandler.TotalUnread)
	api("GET", "/api/chats/:id", app.chatHandler.Get)
	api("POST", "/api/chats/:id/close", app.chatHandler.Close)
	api("GET", "/api/chats/:id/messages", app.messageHandler.List)
	api("POST", "/api/chats/:id/messages", app.messageHandler.Post)
	api("DELETE", "/api/chats/:id/messages/:messageId", app.messageHandler.Delete)
	api("POST", "/api/chats/:id/read", app.messageHandler.MarkRead)
	api("GET", "/api/chats/:id/unread", app.messageHandler.Unread)

	// Presence and push tokens
	api("GET", "/api/users/:id/online", app.presenceHandler.Online)
	api("POST", "/api/notify-tokens", app.notifyTokenHandler.Register)
	api("DELETE", "/api/notify-tokens/:token", app.notifyTokenHandler.Unregister)

	// Realtime
	mux.Get("/ws", standardMiddleware.Append(app.logRequest("/ws"), app.authenticate, app.trackPresence).ThenFunc(app.hub.ServeWS))

	mux.Get("/metrics", metrics.Handler())
	mux.Get("/healthz", standardMiddleware.ThenFunc(app.healthz))

	return mux
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	if err := app.db.PingContext(r.Context()); err != nil {
		app.log.Errorf("healthz: %v", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

// Package rpc is the HTTP JSON surface served by backend nodes and by the
// gateway, plus the client the gateway uses to reach backends.
package rpc

import (
	"context"

	"github.com/dd0wney/cluso-filestore/pkg/gateway"
)

// Health reports the state of a process.
type Health struct {
	Status  string   `json:"status"`
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Leader  bool     `json:"leader"`
	ViewID  uint64   `json:"view_id"`
	Members []string `json:"members"`
	Files   int      `json:"files,omitempty"`
}

// Service is what a Handler serves.
type Service interface {
	gateway.Backend
	Health(ctx context.Context) Health
}

type tokenKey struct{}

// WithToken attaches a bearer token to ctx; the Client sends it along.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached to ctx.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

type hashResponse struct {
	Hash string `json:"hash"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

package middleware

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func callUnary(t *testing.T, g *Gate, rules Rules, method, token string) (string, codes.Code) {
	t.Helper()
	ctx := context.Background()
	if token != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "Bearer "+token))
	}
	interceptor := g.UnaryServerInterceptor(rules)
	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, _ any) (any, error) {
		id, ok := IdentityFromContext(ctx)
		if !ok {
			return "anonymous", nil
		}
		return id.AccountID, nil
	})
	if err != nil {
		return "", status.Code(err)
	}
	return resp.(string), codes.OK
}

func TestUnaryServerInterceptor(t *testing.T) {
	g := newTestGate(false)
	rules := Rules{
		"/auth.v1.Health/Check":      {Public: true},
		"/docs.v1.Articles/Write":    {Resource: "article", Action: "write"},
		"/admin.v1.Admin/Purge":      {Roles: []string{"admin"}},
		"/users.v1.Users/GetProfile": {PermissionNames: []string{"user.read"}},
	}

	tests := []struct {
		method string
		token  string
		want   codes.Code
		who    string
	}{
		{"/auth.v1.Health/Check", "", codes.OK, "anonymous"},
		{"/docs.v1.Articles/List", "", codes.Unauthenticated, ""},
		{"/docs.v1.Articles/List", "bob-token", codes.OK, "bob"},
		{"/docs.v1.Articles/Write", "alice-token", codes.OK, "alice"},
		{"/docs.v1.Articles/Write", "bob-token", codes.PermissionDenied, ""},
		{"/admin.v1.Admin/Purge", "alice-token", codes.PermissionDenied, ""},
		{"/users.v1.Users/GetProfile", "alice-token", codes.OK, "alice"},
		{"/users.v1.Users/GetProfile", "forged", codes.Unauthenticated, ""},
	}
	for _, tt := range tests {
		who, code := callUnary(t, g, rules, tt.method, tt.token)
		if code != tt.want || who != tt.who {
			t.Fatalf("%s with %q: got (%q, %v), want (%q, %v)", tt.method, tt.token, who, code, tt.who, tt.want)
		}
	}
}

func TestUnaryServerInterceptorBackendFailure(t *testing.T) {
	g := newTestGate(true)
	_, code := callUnary(t, g, Rules{"/m": {Roles: []string{"editor"}}}, "/m", "alice-token")
	if code != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", code)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	g := newTestGate(false)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer alice-token"))
	var who string
	err := g.StreamServerInterceptor(nil)(nil, fakeStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/s"}, func(_ any, ss grpc.ServerStream) error {
		id, _ := IdentityFromContext(ss.Context())
		who = id.AccountID
		return nil
	})
	if err != nil || who != "alice" {
		t.Fatalf("stream: who=%q err=%v", who, err)
	}
}

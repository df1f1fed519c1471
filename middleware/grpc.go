package middleware

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Rule is the authorization policy of one gRPC method. The zero Rule only
// requires authentication. Roles, Permission and PermissionNames are
// checked in that order and each must pass when set.
type Rule struct {
	// Public methods skip authentication entirely.
	Public          bool
	Roles           []string
	Resource        string
	Action          string
	PermissionNames []string
}

// Rules maps a full method name ("/pkg.Service/Method") to its Rule.
// Methods missing from the table get the zero Rule.
type Rules map[string]Rule

// UnaryServerInterceptor authenticates every call from its "authorization"
// metadata and enforces rules. The identity is available to handlers
// through IdentityFromContext.
func (g *Gate) UnaryServerInterceptor(rules Rules) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authorizeCall(ctx, info.FullMethod, rules)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streams.
func (g *Gate) StreamServerInterceptor(rules Rules) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authorizeCall(ss.Context(), info.FullMethod, rules)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

func (g *Gate) authorizeCall(ctx context.Context, method string, rules Rules) (context.Context, error) {
	rule := rules[method]
	if rule.Public {
		return ctx, nil
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			header = v[0]
		}
	}
	id, err := g.Verify(ctx, header)
	if err != nil {
		return nil, grpcError(err)
	}

	if len(rule.Roles) > 0 {
		if err := g.CheckRoles(ctx, id, rule.Roles...); err != nil {
			return nil, grpcError(err)
		}
	}
	if rule.Resource != "" {
		if err := g.CheckPermission(ctx, id, rule.Resource, rule.Action); err != nil {
			return nil, grpcError(err)
		}
	}
	if len(rule.PermissionNames) > 0 {
		if err := g.CheckPermissionNames(ctx, id, rule.PermissionNames...); err != nil {
			return nil, grpcError(err)
		}
	}
	return WithIdentity(ctx, id), nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "invalid or missing bearer token")
	case errors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, "permission denied")
	default:
		return status.Error(codes.Unavailable, "authorization backend unavailable")
	}
}

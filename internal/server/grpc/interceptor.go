package grpc

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/threat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type ctxKey string

const userKey ctxKey = "user"

// protectedMethods need a valid session before the handler runs.
var protectedMethods = map[string]bool{
	MethodValidateSession: true,
	MethodChangePassword:  true,
}

func currentUser(ctx context.Context) *services.UserInfo {
	u, _ := ctx.Value(userKey).(*services.UserInfo)
	return u
}

func firstMD(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// sessionToken reads the session_token metadata key, then a Bearer
// authorization value.
func sessionToken(ctx context.Context) string {
	if t := firstMD(ctx, common.SessionTokenName); t != "" {
		return t
	}
	h := firstMD(ctx, "authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func clientMeta(ctx context.Context) services.ClientMeta {
	return services.ClientMeta{IP: peerIP(ctx), UserAgent: firstMD(ctx, common.UserAgentHeaderName)}
}

// screenInterceptor renders the request message as JSON and runs it through
// the threat detector together with the caller's user agent.
func (s *GRPCServer) screenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	tr := threat.Request{
		Method:    "POST",
		Path:      info.FullMethod,
		UserAgent: firstMD(ctx, common.UserAgentHeaderName),
		ClientIP:  peerIP(ctx),
	}
	if msg, ok := req.(proto.Message); ok {
		body, err := protojson.Marshal(msg)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed request")
		}
		tr.Body = body
	}

	if v := s.screener.Screen(ctx, tr); !v.Allowed {
		return nil, status.Error(codes.PermissionDenied, "security threat detected")
	}
	return handler(ctx, req)
}

func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if protectedMethods[info.FullMethod] {

		token := sessionToken(ctx)
		if len(token) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing session token")
		}

		user, err := s.auth.ValidateSession(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrSessionInvalid) {
				return nil, status.Error(codes.Unauthenticated, "invalid or expired session")
			}
			return nil, status.Error(codes.Internal, "internal error")
		}

		ctx = context.WithValue(ctx, userKey, user)
	}

	return handler(ctx, req)
}

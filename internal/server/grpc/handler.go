package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func userValue(u *services.UserInfo) *structpb.Value {
	fields := map[string]*structpb.Value{
		"id":       structpb.NewStringValue(u.ID),
		"username": structpb.NewStringValue(u.Username),
		"role":     structpb.NewStringValue(string(u.Role)),
	}
	if !u.SessionExpiresAt.IsZero() {
		fields["session_created_at"] = structpb.NewStringValue(u.SessionCreatedAt.UTC().Format(time.RFC3339))
		fields["session_expires_at"] = structpb.NewStringValue(u.SessionExpiresAt.UTC().Format(time.RFC3339))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	username := strings.TrimSpace(stringField(req, "username"))
	password := stringField(req, "password")
	if username == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}
	remember := req.GetFields()["remember"].GetBoolValue()

	res, err := s.auth.Login(ctx, username, password, clientMeta(ctx), remember)
	if err != nil {
		var limited *common.RateLimitedError
		switch {
		case errors.As(err, &limited):
			return nil, status.Errorf(codes.ResourceExhausted, "too many failed login attempts, retry in %d minute(s)", limited.MinutesRemaining)
		case errors.Is(err, common.ErrInvalidCredentials):
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	s.logger.Info(ctx, "Logged in", "username", res.User.Username)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":          userValue(&res.User),
		"session_token": structpb.NewStringValue(res.Token),
		"expires_at":    structpb.NewStringValue(res.ExpiresAt.UTC().Format(time.RFC3339)),
	}}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	token := sessionToken(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing session token")
	}

	ok, err := s.auth.LogoutSession(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"success": structpb.NewBoolValue(ok),
	}}, nil
}

func (s *GRPCServer) ValidateSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	user := currentUser(ctx)
	if user == nil {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"authenticated": structpb.NewBoolValue(true),
		"user":          userValue(user),
	}}, nil
}

// ChangePassword reports policy violations as InvalidArgument with a Struct
// detail holding the reasons and the strength label.
func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	user := currentUser(ctx)
	if user == nil {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}

	err := s.auth.ChangePassword(ctx, user.ID, stringField(req, "current_password"), stringField(req, "new_password"), peerIP(ctx))
	if err != nil {
		var invalid *common.ValidationError
		switch {
		case errors.As(err, &invalid):
			return nil, validationStatus(invalid).Err()
		case errors.Is(err, common.ErrInvalidCredentials):
			return nil, status.Error(codes.InvalidArgument, "invalid_current_password")
		case errors.Is(err, common.ErrorNotFound):
			return nil, status.Error(codes.NotFound, "user_not_found")
		}
		return nil, status.Error(codes.Internal, "internal_error")
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"success": structpb.NewBoolValue(true),
	}}, nil
}

func validationStatus(e *common.ValidationError) *status.Status {
	st := status.New(codes.InvalidArgument, "validation_failed")

	reasons := make([]*structpb.Value, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		reasons = append(reasons, structpb.NewStringValue(r))
	}
	detail := &structpb.Struct{Fields: map[string]*structpb.Value{
		"details":  structpb.NewListValue(&structpb.ListValue{Values: reasons}),
		"strength": structpb.NewStringValue(e.Strength),
	}}

	withDetails, err := st.WithDetails(detail)
	if err != nil {
		return st
	}
	return withDetails
}

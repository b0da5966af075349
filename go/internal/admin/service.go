// Package admin is the operator RPC surface: session inspection, metrics
// reset and chat bridge links, served over connect.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/quizarena/go/internal/bridge"
	"github.com/mcdev12/quizarena/go/internal/metrics"
	"github.com/mcdev12/quizarena/go/internal/protocol"
	"github.com/mcdev12/quizarena/go/internal/session"
)

// Sessions defines what the admin service needs from the engine
type Sessions interface {
	Status(code string) (session.Status, error)
	List() []session.Status
}

// Resetter clears collected metrics.
type Resetter interface {
	Reset(token string) error
}

// Links manages chat bridge links. Nil disables the link procedures.
type Links interface {
	Link(code, channelID string) bridge.Link
	Unlink(code string) bool
	Links() []bridge.Link
}

// Service implements the admin procedures on well-known message types.
type Service struct {
	sessions  Sessions
	metrics   Resetter
	links     Links
	validator *protocol.Validator
}

func NewService(sessions Sessions, m Resetter, links Links, v *protocol.Validator) *Service {
	return &Service{
		sessions:  sessions,
		metrics:   m,
		links:     links,
		validator: v,
	}
}

type codeRequest struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

type linkRequest struct {
	Code      string `json:"code" validate:"required,len=6,alphanum"`
	ChannelID string `json:"channelId" validate:"required,max=128"`
}

type resetRequest struct {
	Token string `json:"token"`
}

// GetSession returns the status of one live session
func (s *Service) GetSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var in codeRequest
	if err := s.decode(req.Msg, &in); err != nil {
		return nil, err
	}

	st, err := s.sessions.Status(in.Code)
	if err != nil {
		return nil, toConnectError(err)
	}

	out, err := toStruct(st)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// ListSessions returns every live session
func (s *Service) ListSessions(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	out, err := toStruct(map[string]any{"sessions": s.sessions.List()})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// ResetMetrics clears counters; the token comes from the body or the usual
// metrics headers.
func (s *Service) ResetMetrics(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	var in resetRequest
	if req.Msg != nil {
		if err := s.decode(req.Msg, &in); err != nil {
			return nil, err
		}
	}
	if in.Token == "" {
		in.Token = metrics.TokenFromHeader(req.Header())
	}

	if err := s.metrics.Reset(in.Token); err != nil {
		return nil, toConnectError(err)
	}
	log.Info().Str("peer", req.Peer().Addr).Msg("metrics reset via admin")
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// LinkChat attaches a live session to an external chat channel
func (s *Service) LinkChat(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	if s.links == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chat bridge disabled"))
	}
	var in linkRequest
	if err := s.decode(req.Msg, &in); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Status(in.Code); err != nil {
		return nil, toConnectError(err)
	}

	out, err := toStruct(s.links.Link(in.Code, in.ChannelID))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// UnlinkChat detaches a session from its chat channel
func (s *Service) UnlinkChat(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	if s.links == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chat bridge disabled"))
	}
	var in codeRequest
	if err := s.decode(req.Msg, &in); err != nil {
		return nil, err
	}

	out, err := structpb.NewStruct(map[string]any{"removed": s.links.Unlink(in.Code)})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// ListLinks returns the active chat links
func (s *Service) ListLinks(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	if s.links == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("chat bridge disabled"))
	}
	out, err := toStruct(map[string]any{"links": s.links.Links()})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// decode copies msg into a tagged request struct and validates it.
func (s *Service) decode(msg *structpb.Struct, v any) error {
	if msg == nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("empty request"))
	}
	data, err := json.Marshal(msg.AsMap())
	if err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid request: %w", err))
	}
	if err := s.validator.Check(v); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return structpb.NewStruct(m)
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, metrics.ErrResetUnauthorized):
		return connect.NewError(connect.CodePermissionDenied, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

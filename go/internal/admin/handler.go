package admin

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const AdminServiceName = "quizarena.admin.v1.AdminService"

const (
	GetSessionProcedure   = "/" + AdminServiceName + "/GetSession"
	ListSessionsProcedure = "/" + AdminServiceName + "/ListSessions"
	ResetMetricsProcedure = "/" + AdminServiceName + "/ResetMetrics"
	LinkChatProcedure     = "/" + AdminServiceName + "/LinkChat"
	UnlinkChatProcedure   = "/" + AdminServiceName + "/UnlinkChat"
	ListLinksProcedure    = "/" + AdminServiceName + "/ListLinks"
)

// NewAdminServiceHandler builds the HTTP handler for every admin procedure
// and returns the path it should be mounted on.
func NewAdminServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	getSession := connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...)
	listSessions := connect.NewUnaryHandler(ListSessionsProcedure, svc.ListSessions, opts...)
	resetMetrics := connect.NewUnaryHandler(ResetMetricsProcedure, svc.ResetMetrics, opts...)
	linkChat := connect.NewUnaryHandler(LinkChatProcedure, svc.LinkChat, opts...)
	unlinkChat := connect.NewUnaryHandler(UnlinkChatProcedure, svc.UnlinkChat, opts...)
	listLinks := connect.NewUnaryHandler(ListLinksProcedure, svc.ListLinks, opts...)

	return "/" + AdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetSessionProcedure:
			getSession.ServeHTTP(w, r)
		case ListSessionsProcedure:
			listSessions.ServeHTTP(w, r)
		case ResetMetricsProcedure:
			resetMetrics.ServeHTTP(w, r)
		case LinkChatProcedure:
			linkChat.ServeHTTP(w, r)
		case UnlinkChatProcedure:
			unlinkChat.ServeHTTP(w, r)
		case ListLinksProcedure:
			listLinks.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Client calls the admin service.
type Client struct {
	getSession   *connect.Client[structpb.Struct, structpb.Struct]
	listSessions *connect.Client[emptypb.Empty, structpb.Struct]
	resetMetrics *connect.Client[structpb.Struct, emptypb.Empty]
	linkChat     *connect.Client[structpb.Struct, structpb.Struct]
	unlinkChat   *connect.Client[structpb.Struct, structpb.Struct]
	listLinks    *connect.Client[emptypb.Empty, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		getSession:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetSessionProcedure, opts...),
		listSessions: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListSessionsProcedure, opts...),
		resetMetrics: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+ResetMetricsProcedure, opts...),
		linkChat:     connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+LinkChatProcedure, opts...),
		unlinkChat:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+UnlinkChatProcedure, opts...),
		listLinks:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListLinksProcedure, opts...),
	}
}

func (c *Client) GetSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *Client) ListSessions(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.listSessions.CallUnary(ctx, req)
}

func (c *Client) ResetMetrics(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	return c.resetMetrics.CallUnary(ctx, req)
}

func (c *Client) LinkChat(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.linkChat.CallUnary(ctx, req)
}

func (c *Client) UnlinkChat(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.unlinkChat.CallUnary(ctx, req)
}

func (c *Client) ListLinks(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.listLinks.CallUnary(ctx, req)
}

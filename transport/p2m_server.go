package transport

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/trace2e/t2ecore/naming"
	"github.com/trace2e/t2ecore/p2m"
	"github.com/trace2e/t2ecore/t2eerrors"
)

// processIdentity is a placeholder start_time/exe_path pair for processes
// named only by pid over the wire (spec §6's local_enroll/remote_enroll
// requests carry pid, not the full start_time/exe_path disambiguator from
// spec §3's Process type). A real interception library enrollment call
// would resolve these from /proc/<pid> before crossing the wire; until
// then every enrolled process within one server lifetime is assumed
// pid-unique, which holds for the scenarios spec §8 exercises.
var processIdentity = time.Time{}

// P2MServer exposes an Orchestrator to the interception library over
// gRPC, per spec §6's P2M wire surface.
type P2MServer struct {
	orchestrator *p2m.Orchestrator
	log          *logrus.Entry
}

// NewP2MServer creates a P2MServer.
func NewP2MServer(orchestrator *p2m.Orchestrator, log *logrus.Entry) *P2MServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &P2MServer{orchestrator: orchestrator, log: log.WithField("component", "p2m_server")}
}

func (s *P2MServer) localEnroll(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*localEnrollRequest)
	process := naming.NewProcess(int64(r.PID), processIdentity, "")
	s.orchestrator.LocalEnroll(r.PID, r.FD, process, r.Path)
	return &ackResponse{}, nil
}

func (s *P2MServer) remoteEnroll(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*remoteEnrollRequest)
	process := naming.NewProcess(int64(r.PID), processIdentity, "")
	s.orchestrator.RemoteEnroll(r.PID, r.FD, process, r.LocalSocket, r.PeerSocket)
	return &ackResponse{}, nil
}

func (s *P2MServer) ioRequest(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*ioRequestRequest)
	flow, err := parseFlow(r.Flow)
	if err != nil {
		return nil, err
	}
	grant, err := s.orchestrator.IoRequest(ctx, r.PID, r.FD, flow)
	if err != nil {
		return nil, err
	}
	return &ioRequestResponse{GrantID: grant.ID.String()}, nil
}

func (s *P2MServer) ioReport(ctx context.Context, req interface{}) (interface{}, error) {
	r := req.(*ioReportRequest)
	grantID, err := p2m.ParseGrantID(r.GrantID)
	if err != nil {
		return nil, err
	}
	if err := s.orchestrator.IoReport(ctx, r.PID, r.FD, grantID, r.Result); err != nil {
		return nil, err
	}
	return &ackResponse{}, nil
}

func parseFlow(s string) (p2m.IOFlow, error) {
	switch s {
	case "input":
		return p2m.FlowInput, nil
	case "output":
		return p2m.FlowOutput, nil
	case "none", "":
		return p2m.FlowNone, nil
	default:
		return p2m.FlowNone, t2eerrors.InvalidResourceFormat("unrecognized flow %q", s)
	}
}

// ServiceDesc returns the grpc.ServiceDesc registering the four P2M RPCs
// (spec §6 "P2M wire surface"): local_enroll, remote_enroll, io_request,
// io_report.
func (s *P2MServer) ServiceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "trace2e.P2M",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "LocalEnroll",
				Handler:    jsonUnaryHandler(func() interface{} { return new(localEnrollRequest) }, s.localEnroll),
			},
			{
				MethodName: "RemoteEnroll",
				Handler:    jsonUnaryHandler(func() interface{} { return new(remoteEnrollRequest) }, s.remoteEnroll),
			},
			{
				MethodName: "IoRequest",
				Handler:    jsonUnaryHandler(func() interface{} { return new(ioRequestRequest) }, s.ioRequest),
			},
			{
				MethodName: "IoReport",
				Handler:    jsonUnaryHandler(func() interface{} { return new(ioReportRequest) }, s.ioReport),
			},
		},
		Metadata: "trace2e/p2m.proto",
	}
}

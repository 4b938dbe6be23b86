// stat backend server for monoio event queues
package stat

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/rarydzu/monoio/eventqueue"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "monoio.stat.Stat"
	StatMethod      = "/" + ServiceName + "/Stat"
	QueueStatMethod = "/" + ServiceName + "/QueueStat"
)

// StatServer is the server API of the stat service.
type StatServer interface {
	Stat(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	QueueStat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes the stat service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stat", Handler: statHandler},
		{MethodName: "QueueStat", Handler: queueStatHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "monoio/stat.proto",
}

func statHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatServer).Stat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatServer).Stat(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func queueStatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatServer).QueueStat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: QueueStatMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatServer).QueueStat(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Source lists queue statistics; the registry is one.
type Source interface {
	Stats() []eventqueue.Stats
}

type Server struct {
	src  Source
	pid  int32
	log  *zap.SugaredLogger
	grpc *grpc.Server
}

var _ StatServer = (*Server)(nil)

// New is a constructor for Server
func New(src Source, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{src: src, pid: int32(os.Getpid()), log: log}
}

// Register adds the stat service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Serve listens on address and serves in the background.
func (s *Server) Serve(address string) (net.Addr, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	s.grpc = grpc.NewServer()
	s.Register(s.grpc)
	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.log.Errorf("stat server: %v", err)
		}
	}()
	s.log.Infof("stat server listening on %s", lis.Addr())
	return lis.Addr(), nil
}

func (s *Server) Stop() error {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	return nil
}

func queueFields(st eventqueue.Stats) map[string]interface{} {
	return map[string]interface{}{
		"owner":                st.Owner,
		"capacity":             st.Capacity,
		"acquired":             st.Acquired,
		"submitted":            st.Submitted,
		"completed":            st.Completed,
		"discarded":            st.Discarded,
		"timeouts":             st.Timeouts,
		"stalls":               st.Stalls,
		"consecutive_timeouts": st.ConsecutiveTimeouts,
		"last_progress":        st.LastProgress.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Server) processFields() map[string]interface{} {
	p, err := process.NewProcess(s.pid)
	if err != nil {
		s.log.Warnf("stat: process %d: %v", s.pid, err)
		return nil
	}
	fields := map[string]interface{}{"pid": s.pid}
	if mem, err := p.MemoryInfo(); err == nil {
		fields["rss"] = mem.RSS
		fields["vms"] = mem.VMS
	}
	if n, err := p.NumThreads(); err == nil {
		fields["threads"] = n
	}
	if n, err := p.NumFDs(); err == nil {
		fields["fds"] = n
	}
	return fields
}

// Stat is a RPC returning every queue and the process footprint.
func (s *Server) Stat(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.src.Stats()
	queues := make([]interface{}, 0, len(stats))
	for _, st := range stats {
		queues = append(queues, queueFields(st))
	}
	fields := map[string]interface{}{
		"queues": queues,
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if p := s.processFields(); p != nil {
		fields["process"] = p
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
	}
	return out, nil
}

// QueueStat is a RPC returning the queue of one worker.
func (s *Server) QueueStat(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	for _, st := range s.src.Stats() {
		if st.Owner == in.GetValue() {
			out, err := structpb.NewStruct(queueFields(st))
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
			}
			return out, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "no event queue for worker %q", in.GetValue())
}

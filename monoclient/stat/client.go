package stat

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	statsrv "github.com/rarydzu/monoio/monoserver/stat"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a client for the stat server.
type Client struct {
	conn *grpc.ClientConn
}

// NewConnection dials address with mutual TLS from certDir, or insecurely
// when certDir is empty and MONOIO_DEV_RUN is set.
func NewConnection(address, certDir string, log *zap.SugaredLogger) (*grpc.ClientConn, error) {
	if len(certDir) == 0 {
		testrun := os.Getenv("MONOIO_DEV_RUN")
		if len(testrun) == 0 {
			return nil, fmt.Errorf("Stat Client: certDir is empty")
		}
		log.Infof("running insecure client reason: %s", testrun)
		conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		return conn, err
	}
	caPem, err := os.ReadFile(fmt.Sprintf("%s/ca-cert.pem", certDir))
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caPem) {
		return nil, fmt.Errorf("Stat Client: no certificates in %s/ca-cert.pem", certDir)
	}
	clientCertPath := fmt.Sprintf("%s/client-cert.pem", certDir)
	clientKeyPath := fmt.Sprintf("%s/client-key.pem", certDir)
	clientCert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      certPool,
	}

	tlsCredential := credentials.NewTLS(config)
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(tlsCredential))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// New is a constructor for Client
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Stat returns every event queue and the process footprint of the server.
func (c *Client) Stat(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsrv.StatMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// QueueStat returns the event queue of one worker.
func (c *Client) QueueStat(ctx context.Context, worker string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsrv.QueueStatMethod, wrapperspb.String(worker), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

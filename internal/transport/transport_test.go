package transport

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthFollowsServingState(t *testing.T) {
	srv, err := StartServer(0)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	go func() { _ = srv.Serve() }()
	defer srv.Stop(context.Background())

	port := srv.Addr().(*net.TCPAddr).Port
	cli, cc, err := Dial(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cc.Close()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v", got)
	}
	srv.SetServing(true)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v after SetServing(true)", got)
	}
}

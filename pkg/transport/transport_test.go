package transport

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// echoOnce accepts one stream on conn, reads it to EOF and writes back
// reply, then closes its send side.
func echoOnce(ctx context.Context, conn Conn, reply string) <-chan string {
	got := make(chan string, 1)
	go func() {
		s, err := conn.AcceptStream(ctx)
		if err != nil {
			got <- "accept: " + err.Error()
			return
		}
		b, _ := io.ReadAll(s)
		_, _ = s.Write([]byte(reply))
		_ = s.Close()
		got <- string(b)
	}()
	return got
}

func TestMemoryStreamRoundTrip(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")
	defer client.Close()

	got := echoOnce(ctx, server, "pong")

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reply, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
	assert.Equal(t, "ping", <-got)
}

func TestMemoryCancelReadFailsPeerWrites(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")
	defer client.Close()

	accepted := make(chan Stream, 1)
	go func() {
		s, _ := server.AcceptStream(ctx)
		accepted <- s
	}()

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	peer := <-accepted
	peer.CancelRead()

	_, err = s.Write([]byte("data nobody reads"))
	assert.ErrorIs(t, err, ErrStreamCanceled)
}

func TestMemoryCancelWriteFailsPeerReads(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")
	defer client.Close()

	accepted := make(chan Stream, 1)
	go func() {
		s, _ := server.AcceptStream(ctx)
		accepted <- s
	}()

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	peer := <-accepted

	s.CancelWrite()
	_, err = io.ReadAll(peer)
	assert.ErrorIs(t, err, ErrStreamReset)
}

func TestMemoryConnCloseFailsStreams(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")

	accepted := make(chan Stream, 1)
	go func() {
		s, _ := server.AcceptStream(ctx)
		accepted <- s
	}()
	_, err := client.OpenStream(ctx)
	require.NoError(t, err)
	peer := <-accepted

	require.NoError(t, client.Close())

	_, err = peer.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-server.Done():
	default:
		t.Fatal("server side not done after close")
	}

	_, err = server.AcceptStream(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = client.OpenStream(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryConnForgetsFinishedStreams(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")
	t.Cleanup(func() { _ = client.Close() })

	accepted := make(chan Stream)
	go func() {
		for {
			s, err := server.AcceptStream(ctx)
			if err != nil {
				close(accepted)
				return
			}
			accepted <- s
		}
	}()

	for i := 0; i < 50; i++ {
		local, err := client.OpenStream(ctx)
		require.NoError(t, err)
		remote := <-accepted

		require.NoError(t, local.Close())
		_, err = io.ReadAll(remote)
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, remote.Close())
		} else {
			remote.CancelWrite()
		}
	}
	assert.Equal(t, 0, client.openStreams())
	assert.Equal(t, 0, server.openStreams())

	// A stream closed on one side only stays tracked so Close can fail it.
	local, err := client.OpenStream(ctx)
	require.NoError(t, err)
	remote := <-accepted
	require.NoError(t, local.Close())
	assert.Equal(t, 1, client.openStreams())

	require.NoError(t, client.Close())
	_, err = remote.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryListener(t *testing.T) {
	ctx := testCtx(t)
	ln := NewMemoryListener("mem:1")

	accepted := make(chan Conn, 1)
	go func() {
		c, _ := ln.Accept(ctx)
		accepted <- c
	}()

	client, err := ln.Dial(ctx)
	require.NoError(t, err)
	server := <-accepted
	assert.Equal(t, client.LocalAddr().String(), server.RemoteAddr().String())

	require.NoError(t, ln.Close())
	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamIDsAreDistinct(t *testing.T) {
	ctx := testCtx(t)
	client, server := MemoryPipe("c", "s")
	defer client.Close()

	go func() {
		for {
			if _, err := server.AcceptStream(ctx); err != nil {
				return
			}
		}
	}()

	a, err := client.OpenStream(ctx)
	require.NoError(t, err)
	b, err := client.OpenStream(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSelfSignedCertificate(t *testing.T) {
	cert, err := SelfSignedCertificate("localhost", "127.0.0.1")
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "localhost")
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())
	assert.True(t, leaf.NotAfter.After(time.Now()))
}

func TestWriteSelfSignedLoads(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, WriteSelfSigned(certFile, keyFile, "localhost"))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	serverConf, err := ServerTLSConfig(certFile, keyFile, nil)
	require.NoError(t, err)
	assert.Len(t, serverConf.Certificates, 1)

	clientConf, err := ClientTLSConfig("localhost", certFile, false)
	require.NoError(t, err)
	assert.NotNil(t, clientConf.RootCAs)

	raw, _ := os.ReadFile(certFile)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)
}

func TestServerTLSConfigNeedsBothFiles(t *testing.T) {
	_, err := ServerTLSConfig("cert.pem", "", nil)
	assert.Error(t, err)
}

func TestQUICLoopback(t *testing.T) {
	ctx := testCtx(t)

	serverConf, err := ServerTLSConfig("", "", []string{"localhost"})
	require.NoError(t, err)
	ln, err := ListenQUIC("127.0.0.1:0", serverConf, QUICConfig{IdleTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			got <- "accept: " + err.Error()
			return
		}
		got <- <-echoOnce(ctx, conn, "pong")
	}()

	clientConf, err := ClientTLSConfig("localhost", "", true)
	require.NoError(t, err)
	conn, err := DialQUIC(ctx, ln.Addr().String(), clientConf, QUICConfig{})
	require.NoError(t, err)
	defer conn.Close()

	s, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reply, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
	assert.Equal(t, "ping", <-got)
}

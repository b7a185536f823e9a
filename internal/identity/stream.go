// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package identity

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// WatchMethod is the server-streaming RPC that pushes session changes.
// Request and events are google.protobuf.Struct messages:
//
//	request: {"access_token": "..."}
//	event:   {"type": "SIGNED_OUT" | "TOKEN_REFRESHED" | "USER_UPDATED",
//	          "access_token": "...", "refresh_token": "..."}
const WatchMethod = "/tillbook.identity.v1.SessionEvents/Watch"

// StreamOptions tune the remote event stream.
type StreamOptions struct {
	// Target is a grpc://, grpcs:// or bare host:port address.
	Target string
	// DialOptions replace the transport derived from Target, e.g. a bufconn dialer in tests.
	DialOptions []grpc.DialOption
	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnError, if set, is called with every failed stream attempt before backing off.
	OnError func(err error)
}

// WatchRemote keeps a session event stream open until ctx is done, reconnecting with backoff.
// Pushed events are stored and published on the hub with Remote origin.
func (c *Client) WatchRemote(ctx context.Context, opts StreamOptions) error {
	target, dialOpts, err := streamTarget(opts)
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return fmt.Errorf("dial session events: %w", err)
	}
	defer conn.Close()

	minB, maxB := opts.MinBackoff, opts.MaxBackoff
	if minB <= 0 {
		minB = 2 * time.Second
	}
	if maxB < minB {
		maxB = 30 * time.Second
	}

	backoff := minB
	for {
		err := c.watchOnce(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if status.Code(err) == codes.Unauthenticated {
			c.log.Debug("session event stream rejected token, waiting for a new session")
		} else if err != nil {
			c.log.Debug("session event stream closed", "error", err)
			if opts.OnError != nil {
				opts.OnError(err)
			}
		} else {
			backoff = minB
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxB {
			backoff = maxB
		}
	}
}

// watchOnce runs one stream until it ends.
func (c *Client) watchOnce(ctx context.Context, conn *grpc.ClientConn) error {
	sess := c.Peek()
	if sess == nil {
		return status.Error(codes.Unauthenticated, "no session")
	}

	ctx = metadata.NewOutgoingContext(ctx, metadata.Pairs("authorization", "Bearer "+sess.AccessToken))
	cs, err := conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}, WatchMethod)
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]any{"access_token": sess.AccessToken})
	if err != nil {
		return err
	}
	if err := cs.SendMsg(req); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}

	for {
		msg := &structpb.Struct{}
		if err := cs.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.applyRemote(msg)
	}
}

// applyRemote stores tokens carried by a pushed event and republishes it.
func (c *Client) applyRemote(msg *structpb.Struct) {
	fields := msg.GetFields()
	kind := EventKind(fields["type"].GetStringValue())

	switch kind {
	case SignedOut:
		_ = c.tokens.clear()
		c.hub.Publish(Remote, SignedOut, nil)
	case TokenRefreshed, UserUpdated:
		access := fields["access_token"].GetStringValue()
		if access == "" {
			c.hub.Publish(Remote, kind, c.Peek())
			return
		}
		_, prevRefresh, _ := c.tokens.load()
		sess, err := c.tokens.save(&oauth2.Token{
			AccessToken:  access,
			RefreshToken: fields["refresh_token"].GetStringValue(),
		}, prevRefresh)
		if err != nil {
			c.log.Warn("ignoring pushed session event", "type", kind, "error", err)
			return
		}
		c.hub.Publish(Remote, kind, sess)
	default:
		c.log.Debug("ignoring unknown session event", "type", kind)
	}
}

// streamTarget derives the dial target and transport credentials.
// grpc:// and http:// are plaintext; anything else uses TLS on 443 by default.
func streamTarget(opts StreamOptions) (string, []grpc.DialOption, error) {
	if opts.Target == "" {
		return "", nil, errors.New("session events address is empty")
	}
	if len(opts.DialOptions) > 0 {
		return opts.Target, opts.DialOptions, nil
	}

	secure := true
	addr := opts.Target
	if u, err := url.Parse(opts.Target); err == nil && u.Host != "" {
		addr = u.Host
		secure = u.Scheme != "grpc" && u.Scheme != "http"
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	} else if secure {
		addr = net.JoinHostPort(addr, "443")
	}

	if !secure {
		return addr, []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds := credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	return addr, []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

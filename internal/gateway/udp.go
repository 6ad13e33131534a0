// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gateway

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
)

// maxDatagram bounds a command datagram; commands are a few dozen bytes.
const maxDatagram = 1500

// ServeUDP answers one reply datagram per command datagram on conn until
// ctx is done. conn is closed on return.
func (g *Gateway) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	log.Printf("gateway: udp listening on %s", conn.LocalAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	defer conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Println("gateway: udp listener stopped")
				return nil
			}
			return err
		}

		reply := g.Handle(strings.TrimRight(string(buf[:n]), "\r\n"))
		if _, err := conn.WriteTo([]byte(reply+"\n"), addr); err != nil {
			log.Printf("gateway: udp reply to %s: %v", addr, err)
		}
	}
}

// ListenUDP opens the command socket.
func ListenUDP(addr string) (net.PacketConn, error) {
	return net.ListenPacket("udp", addr)
}

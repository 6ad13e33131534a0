// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gateway

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator consoles are served from other hosts on the robot network
	},
}

// HandleControlWS serves an operator session: each text message is one
// command and is answered with one text reply.
func (g *Gateway) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	log.Printf("gateway: websocket session %s opened from %s", session, r.RemoteAddr)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("gateway: websocket session %s read error: %v", session, err)
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply := g.Handle(strings.TrimSpace(string(data)))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.Printf("gateway: websocket session %s write error: %v", session, err)
			break
		}
	}
	log.Printf("gateway: websocket session %s closed", session)
}

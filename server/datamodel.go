/******************************************************************************
 *
 *  Description :
 *
 *    Definition of messages exchanged between the panel and its websocket
 *    clients, plus constructors for the server-originated messages.
 *
 *****************************************************************************/

package main

import "time"

// ClientComMessage is a message received from a websocket client.
type ClientComMessage struct {
	Type     string `json:"type"`
	ServerID string `json:"serverId,omitempty"`
	Command  string `json:"command,omitempty"`
}

// Client message types.
const (
	MsgTypeSubscribe = "subscribe_server"
	MsgTypeCommand   = "server_command"
)

// ServerComMessage is a message sent to a websocket client. Exactly one set of
// the optional fields is populated depending on Type.
type ServerComMessage struct {
	Type     string `json:"type"`
	ServerID string `json:"serverId,omitempty"`

	// Console line, set for "server_log".
	Content string `json:"content,omitempty"`

	// New server status, set for "server_status_update".
	Status string `json:"status,omitempty"`

	// Completed power action, set for "server_status_update".
	Action string `json:"action,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Server message types.
const (
	MsgTypeSubConfirmed = "subscription_confirmed"
	MsgTypeServerLog    = "server_log"
	MsgTypeStatusUpdate = "server_status_update"
)

// MsgSubConfirmed acknowledges a subscription to a server's event stream.
func MsgSubConfirmed(serverID string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{
		Type:      MsgTypeSubConfirmed,
		ServerID:  serverID,
		Timestamp: ts,
	}
}

// MsgServerLog carries one console line to subscribers.
func MsgServerLog(serverID, content string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{
		Type:      MsgTypeServerLog,
		ServerID:  serverID,
		Content:   content,
		Timestamp: ts,
	}
}

// MsgStatusUpdate announces a server status change to subscribers.
func MsgStatusUpdate(serverID, status, action string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{
		Type:      MsgTypeStatusUpdate,
		ServerID:  serverID,
		Status:    status,
		Action:    action,
		Timestamp: ts,
	}
}

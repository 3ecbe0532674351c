package services

// Broadcaster is the transport fan-out surface the services push through.
// Implemented by the ws hub; declared here to avoid an import cycle.
type Broadcaster interface {
	// Subscribe adds a connection to a room's delivery set. Subscribed
	// connections receive every room broadcast whether or not they are
	// actively viewing the chat screen.
	Subscribe(connID, room string)
	Unsubscribe(connID, room string)

	ToConn(connID, event string, payload any)
	ToRoom(room, event string, payload any)
	ToRoomExcept(room, exceptConnID, event string, payload any)
}

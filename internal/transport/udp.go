package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/clustercore/cluster/internal/gossip"
)

// UDPGossipTransport sends and receives gossip.Message envelopes as JSON
// datagrams over a plain UDP socket.
type UDPGossipTransport struct {
	conn    *net.UDPConn
	recvCh  chan gossip.Message
	maxPkt  int
	closeCh chan struct{}
}

// NewUDPGossipTransport binds a UDP socket at listenAddr and starts the
// background receive loop.
func NewUDPGossipTransport(listenAddr string, maxPacketBytes int) (*UDPGossipTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve gossip listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("start gossip udp listener: %w", err)
	}
	if maxPacketBytes <= 0 {
		maxPacketBytes = 65507
	}
	t := &UDPGossipTransport{
		conn:    conn,
		recvCh:  make(chan gossip.Message, 256),
		maxPkt:  maxPacketBytes,
		closeCh: make(chan struct{}),
	}
	go t.receiveLoop()
	return t, nil
}

func (t *UDPGossipTransport) receiveLoop() {
	buf := make([]byte, t.maxPkt)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				continue
			}
		}
		var msg gossip.Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			continue
		}
		select {
		case t.recvCh <- msg:
		case <-t.closeCh:
			return
		}
	}
}

// Send encodes msg as JSON and writes it to addr as a single datagram.
func (t *UDPGossipTransport) Send(addr string, msg gossip.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal gossip message: %w", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve gossip peer address %s: %w", addr, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("dial gossip peer %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetWriteDeadline(deadline)
	_, err = conn.Write(data)
	return err
}

// Recv blocks for the next message delivered by the receive loop.
func (t *UDPGossipTransport) Recv() (gossip.Message, error) {
	msg, ok := <-t.recvCh
	if !ok {
		return gossip.Message{}, fmt.Errorf("gossip transport closed")
	}
	return msg, nil
}

// Close stops the receive loop and releases the socket.
func (t *UDPGossipTransport) Close() error {
	close(t.closeCh)
	return t.conn.Close()
}

// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	headerSize   = 4
	writeTimeout = 5 * time.Second
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// ErrPacketTooLarge is returned when a payload does not fit the 2-byte length field.
var ErrPacketTooLarge = errors.New("packet payload too large")

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

// EncodeFrame 封包: 2字节消息ID + 2字节数据长度 + 数据
func EncodeFrame(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPacketTooLarge
	}
	frame := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(frame[0:2], msgID)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(data)))
	copy(frame[headerSize:], data)
	return frame, nil
}

// DecodeFrame splits one websocket message into a packet. Trailing bytes past
// the declared length are ignored.
func DecodeFrame(frame []byte) (*Packet, error) {
	if len(frame) < headerSize {
		return nil, io.ErrShortBuffer
	}
	length := binary.BigEndian.Uint16(frame[2:4])
	if len(frame) < headerSize+int(length) {
		return nil, io.ErrUnexpectedEOF
	}
	return &Packet{
		MsgID:  binary.BigEndian.Uint16(frame[0:2]),
		Length: length,
		Data:   frame[headerSize : headerSize+int(length)],
	}, nil
}

// WSConnection frames packets over a gorilla websocket. Writes are serialized;
// reads belong to a single reader goroutine.
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(headerSize + math.MaxUint16)
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(msgID uint16, data []byte) error {
	frame, err := EncodeFrame(msgID, data)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// SendMessage encodes a member-sent message body and writes it.
func SendMessage(c Connection, m Message) error {
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return c.Send(m.MsgID(), data)
}

// SendEnvelope encodes a relayed envelope and writes it.
func SendEnvelope(c Connection, env Envelope) error {
	msgID, data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.Send(msgID, data)
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(frame)
	}
}

// SetHeartbeat extends the read deadline to two heartbeat intervals from now.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

// Close is safe to call more than once.
func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"autodialer/internal/config"
)

// ErrNotConnected se devuelve al enviar acciones sin sesión activa
var ErrNotConnected = errors.New("no conectado al AMI")

// Client representa un cliente AMI
type Client struct {
	config      config.AMIConfig
	mu          sync.Mutex
	conn        net.Conn
	writer      *bufio.Writer
	connected   bool
	subscribers []chan Event
}

// Event representa un evento AMI
type Event struct {
	Type   string
	Fields map[string]string
}

// NewClient crea un nuevo cliente AMI
func NewClient(cfg config.AMIConfig) *Client {
	return &Client{config: cfg}
}

// Run mantiene la sesión AMI abierta, reconectando hasta que ctx se cancele
func (c *Client) Run(ctx context.Context) error {
	interval := time.Duration(c.config.ReconnectInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[AMI] Sesión terminada: %v. Reconectando en %v...", err, interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// session conecta, autentica y lee eventos hasta que la conexión falle
func (c *Client) session(ctx context.Context) error {
	addr := c.config.Address()
	log.Printf("[AMI] Conectando a %s", addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("error conectando: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	// Leer banner inicial
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("error leyendo banner: %w", err)
	}

	if err := c.login(reader, writer); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = writer
	c.connected = true
	c.mu.Unlock()
	log.Printf("[AMI] Conectado correctamente")

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.writer = nil
		c.mu.Unlock()
	}()

	for {
		event, err := readMessage(reader)
		if err != nil {
			return fmt.Errorf("error leyendo evento: %w", err)
		}
		if event.Type != "" {
			c.broadcast(event)
		}
	}
}

// login autentica con el servidor AMI
func (c *Client) login(reader *bufio.Reader, writer *bufio.Writer) error {
	action := fmt.Sprintf("Action: Login\r\nUsername: %s\r\nSecret: %s\r\n\r\n",
		c.config.Username, c.config.Secret)

	if _, err := writer.WriteString(action); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	response, err := readMessage(reader)
	if err != nil {
		return err
	}
	if response.Fields["Response"] != "Success" {
		return fmt.Errorf("login fallido: %s", response.Fields["Message"])
	}
	return nil
}

// readMessage lee un bloque "Key: Value" terminado en línea vacía
func readMessage(reader *bufio.Reader) (Event, error) {
	fields := make(map[string]string)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return Event{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if len(fields) == 0 {
				continue
			}
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if ok {
			fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	return Event{Type: fields["Event"], Fields: fields}, nil
}

func (c *Client) broadcast(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
			log.Printf("[AMI] Suscriptor lleno, descartando evento %s", event.Type)
		}
	}
}

// Subscribe devuelve un canal que recibe todos los eventos AMI
func (c *Client) Subscribe() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, 2000)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Connected indica si hay una sesión autenticada
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendAction envía una acción al AMI
func (c *Client) SendAction(action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	if _, err := c.writer.WriteString(action); err != nil {
		return err
	}
	return c.writer.Flush()
}
